package outputwriter

import (
	"fmt"

	"github.com/kilnforge/distill/internal/record"
)

// Group is the unit the Scheduler hands to a Writer: every output record
// produced for a single input index (one per fan-out generation that
// succeeded). A group is written, and its index marked complete, as one
// step — partial groups are never committed (§4.6: "an input index is
// only considered written once every surviving generation for it has been
// appended").
type Group struct {
	InputIndex int
	Outputs    []*record.OutputRecord
}

// Writer is the Output Writer of §4.6. Groups are submitted in whatever
// order the Scheduler produces them; the Writer is responsible for
// actually landing bytes on disk in the order its mode requires.
type Writer interface {
	// Submit hands the writer a completed group. For the unordered writer
	// this writes immediately. For the ordered writer this may only
	// buffer the group until its index becomes the next expected one.
	Submit(g Group) error

	// Flush pushes any buffered bytes to the OS (bufio.Flush) without
	// necessarily fsyncing.
	Flush() error

	// Sync fsyncs the underlying file and, for the ordered writer, reports
	// the highest input index now durably on disk — the Scheduler advances
	// the checkpoint's committed prefix no further than this value.
	Sync() (maxDurableIndex int, err error)

	// Pending reports how many groups are currently buffered waiting on a
	// gap (always 0 for the unordered writer). The Scheduler uses this for
	// ordered-mode backpressure (§4.6/§4.7: "bounded reorder buffer").
	Pending() int

	Close() error
}

// Mode selects the output ordering semantics (§4.6).
type Mode string

const (
	ModeOrdered   Mode = "ordered"
	ModeUnordered Mode = "unordered"
)

// Options configures a Writer.
type Options struct {
	Path            string
	Mode            Mode
	FsyncIntervalN  int
	Resume          bool
	NextExpectedIdx int // ordered mode only: resume point (checkpoint's last_committed_index)
	MaxBuffered     int // ordered mode only: reorder buffer cap before Submit returns ErrBufferFull
}

// New constructs a Writer for the given mode, opening path fresh or in
// append/resume mode per Options.Resume.
func New(opts Options) (Writer, error) {
	lf := newLineFile(opts.FsyncIntervalN)

	var err error
	if opts.Resume {
		err = lf.openAppend(opts.Path)
	} else {
		err = lf.open(opts.Path)
	}
	if err != nil {
		return nil, err
	}

	switch opts.Mode {
	case ModeUnordered, "":
		return &UnorderedWriter{lf: lf}, nil
	case ModeOrdered:
		maxBuffered := opts.MaxBuffered
		if maxBuffered <= 0 {
			maxBuffered = 1000
		}
		return &OrderedWriter{
			lf:        lf,
			nextIndex: opts.NextExpectedIdx,
			buffer:    make(map[int]Group),
			maxBuffer: maxBuffered,
		}, nil
	default:
		return nil, fmt.Errorf("outputwriter: unknown mode %q", opts.Mode)
	}
}
