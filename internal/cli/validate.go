package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilnforge/distill/internal/inputreader"
	"github.com/kilnforge/distill/internal/promptbuilder"
	"github.com/kilnforge/distill/internal/record"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration, strategies, or datasets",
	Long: `Validate various components of a distill setup.

Subcommands:
  config    - validate the loaded distill.yaml/.secrets.yaml
  strategy  - show a strategy's required/optional parameters
  dataset   - validate an input file's structure`,
}

var validateConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate the loaded configuration",
	Long:  `Validate checks that every declared model has a unique model_id and that the concurrency defaults are sane (CONFIG_ERROR-worthy problems are caught here, before any task starts).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := GetConfig()
		if err := c.Validate(); err != nil {
			return err
		}
		fmt.Println("config is valid")
		fmt.Printf("  models:              %d\n", len(c.Models))
		for _, m := range c.Models {
			fmt.Printf("    - %s (%s)\n", m.ModelID, m.Dialect)
		}
		fmt.Printf("  workers:             %d\n", c.Defaults.Workers)
		fmt.Printf("  inflight_multiplier: %d\n", c.Defaults.InflightMultiplier)
		fmt.Printf("  state store:         %s\n", c.StateStore.Backend)
		return nil
	},
}

var validateStrategyCmd = &cobra.Command{
	Use:   "strategy <name>",
	Short: "Show a strategy's parameter contract",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		d, err := promptbuilder.Describe(name)
		if err != nil {
			return err
		}
		fmt.Printf("strategy:            %s\n", d.Kind)
		fmt.Printf("required params:     %s\n", strings.Join(d.RequiredParams, ", "))
		if len(d.OptionalParams) > 0 {
			fmt.Printf("optional params:     %s\n", strings.Join(d.OptionalParams, ", "))
		}
		fmt.Printf("default temperature: %.2f\n", d.DefaultTemperature)
		fmt.Printf("supports fan-out:    %v\n", d.SupportsFanout)
		return nil
	},
}

var validateDatasetCmd = &cobra.Command{
	Use:   "dataset <path>",
	Short: "Validate an input file's structure",
	Long:  `Validate walks the input file the same way the input reader does at task start, reporting the record count and any malformed lines, without launching a task.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runValidateDataset,
}

var validateProviderCmd = &cobra.Command{
	Use:   "provider <model_id>",
	Short: "Check connectivity to a configured model",
	Long:  `Provider dials the model backend configured under model_id and runs its HealthCheck, restoring the original implementation's connection-test-before-first-use behavior without running a full task.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runValidateProvider,
}

func init() {
	validateCmd.AddCommand(validateConfigCmd)
	validateCmd.AddCommand(validateStrategyCmd)
	validateCmd.AddCommand(validateDatasetCmd)
	validateCmd.AddCommand(validateProviderCmd)
}

func runValidateProvider(cmd *cobra.Command, args []string) error {
	modelID := args[0]
	client, err := GetRegistry().Get(modelID)
	if err != nil {
		return fmt.Errorf("resolving model %q: %w", modelID, err)
	}
	if err := client.HealthCheck(cmd.Context()); err != nil {
		return fmt.Errorf("health check failed for %q: %w", modelID, err)
	}
	fmt.Printf("%s: ok\n", modelID)
	return nil
}

func runValidateDataset(cmd *cobra.Command, args []string) error {
	path := args[0]
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access file: %w", err)
	}

	if !hasExtension(path, ".jsonl") && !hasExtension(path, ".json") {
		return fmt.Errorf("unsupported format: %s (only .jsonl and .json are supported)", path)
	}

	fmt.Printf("validating: %s (%d bytes)\n", path, info.Size())

	var count, malformed int
	err = inputreader.ReadAll(path, func(rec record.InputRecord, recErr error) error {
		if recErr != nil {
			malformed++
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "records\t%d\n", count)
	fmt.Fprintf(w, "malformed\t%d\n", malformed)
	w.Flush()

	if malformed > 0 {
		fmt.Println("dataset has malformed records; distill will skip them and still process the rest")
	} else {
		fmt.Println("dataset is valid")
	}
	return nil
}

func hasExtension(path, ext string) bool {
	return len(path) > len(ext) && strings.EqualFold(path[len(path)-len(ext):], ext)
}
