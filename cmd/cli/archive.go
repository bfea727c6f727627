package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kurihiro0119/parity-metrics/internal/domain"
	"github.com/kurihiro0119/parity-metrics/internal/report"
	"github.com/kurihiro0119/parity-metrics/internal/snapshot"
)

var listLimit int

var importCmd = &cobra.Command{
	Use:   "import [file...]",
	Short: "Import snapshot files into the archive",
	Long:  `Validate snapshot JSON files and save them to the archive. A snapshot with an already archived generatedAt replaces it.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runImport,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived snapshots",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var validateCmd = &cobra.Command{
	Use:   "validate [file...]",
	Short: "Validate snapshot files against the schema",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "maximum number of snapshots (0 for all)")
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if useAPI {
		c := newClient(cfg)
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			saved, err := c.CreateSnapshot(cmd.Context(), data)
			if err != nil {
				return fmt.Errorf("failed to import %s: %w", path, err)
			}
			fmt.Printf("Imported %s as %s\n", path, saved.ID)
		}
		return nil
	}

	store, err := getStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	for _, path := range args {
		snap, err := snapshot.LoadFile(path)
		if err != nil {
			return err
		}
		saved, err := store.SaveSnapshot(cmd.Context(), snap)
		if err != nil {
			return fmt.Errorf("failed to import %s: %w", path, err)
		}
		fmt.Printf("Imported %s as %s\n", path, saved.ID)
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var summaries []*domain.SnapshotSummary
	if useAPI {
		summaries, err = newClient(cfg).ListSnapshots(cmd.Context(), listLimit)
		if err != nil {
			return fmt.Errorf("failed to list snapshots: %w", err)
		}
	} else {
		store, err := getStorage(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer store.Close()

		summaries, err = store.ListSnapshots(cmd.Context(), listLimit)
		if err != nil {
			return fmt.Errorf("failed to list snapshots: %w", err)
		}
	}

	if outputJSON {
		if summaries == nil {
			summaries = []*domain.SnapshotSummary{}
		}
		return report.JSON(os.Stdout, summaries)
	}

	if len(summaries) == 0 {
		fmt.Println("No snapshots archived")
		return nil
	}
	report.Snapshots(os.Stdout, summaries)
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	invalid := 0
	results := make(map[string]*snapshot.ValidationResult, len(args))

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		result, err := snapshot.Validate(data)
		if err != nil {
			result = &snapshot.ValidationResult{
				Errors: []snapshot.FieldError{{Field: "(root)", Description: err.Error()}},
			}
		}
		results[path] = result
		if !result.Valid {
			invalid++
		}

		if !outputJSON {
			problems := make([]string, 0, len(result.Errors))
			for _, fe := range result.Errors {
				problems = append(problems, fe.String())
			}
			report.Validation(os.Stdout, path, result.Valid, problems)
		}
	}

	if outputJSON {
		if err := report.JSON(os.Stdout, results); err != nil {
			return err
		}
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d snapshots are invalid", invalid, len(args))
	}
	return nil
}
