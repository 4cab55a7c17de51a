package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aafreen2203/SafePostAI/internal/doctor"
)

var (
	doctorJSON        bool
	doctorSkipNetwork bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run preflight checks (data dir, keys, stores, provider credentials)",
	Long:  "Verifies the data directory is writable, both databases open, the configured providers have credentials, and redis/NATS are reachable when configured.",
	RunE:  runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "print the report as JSON")
	doctorCmd.Flags().BoolVar(&doctorSkipNetwork, "offline", false, "skip network reachability checks")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	report := doctor.Run(ctx, doctor.Options{SkipNetwork: doctorSkipNetwork})
	out := cmd.OutOrStdout()
	if doctorJSON {
		if err := writeJSON(out, report); err != nil {
			return err
		}
	} else {
		for _, c := range report.Checks {
			mark := "✓"
			switch c.Status {
			case doctor.StatusWarn:
				mark = "⚠"
			case doctor.StatusFail:
				mark = "✗"
			}
			fmt.Fprintf(out, "%s %-18s %s\n", mark, c.Name, c.Message)
			if c.Fix != "" && c.Status != doctor.StatusPass {
				fmt.Fprintf(out, "    fix: %s\n", c.Fix)
			}
		}
		fmt.Fprintf(out, "\n%d passed, %d warnings, %d failed\n", report.Summary.Pass, report.Summary.Warn, report.Summary.Fail)
	}
	if report.Status == doctor.StatusFail {
		return errors.New("preflight checks failed")
	}
	return nil
}
