// Package statestore implements the Task State Store contract of §6:
// get/put/update/list over TaskState, keyed by task id. Each key's update
// must be atomic; cross-key transactions are not required.
package statestore

import (
	"context"
	"fmt"

	"github.com/kilnforge/distill/internal/taskstate"
)

// ErrNotFound is returned by Get when no TaskState exists for the id.
var ErrNotFound = fmt.Errorf("statestore: task not found")

// Store is the contract consumed by the Task Controller.
type Store interface {
	Get(ctx context.Context, taskID string) (*taskstate.TaskState, error)
	Put(ctx context.Context, state *taskstate.TaskState) error
	// Update atomically applies fn to the current state and persists the
	// result; fn receives a pointer it may mutate in place.
	Update(ctx context.Context, taskID string, fn func(*taskstate.TaskState) error) error
	List(ctx context.Context, status taskstate.Status) ([]*taskstate.TaskState, error)
	Close() error
}
