package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aafreen2203/SafePostAI/internal/history"
)

var (
	historyLimit  int
	historyKind   string
	historySince  time.Duration
	historyJSON   bool
	historyKeep   int
	exportOutput  string
	analyticsDays int
	analyticsJSON bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the signed scan history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent scans (newest first)",
	RunE:  historyList,
}

var historyVerifyCmd = &cobra.Command{
	Use:   "verify [id]",
	Short: "Verify the HMAC signature of a scan record",
	Args:  cobra.ExactArgs(1),
	RunE:  historyVerify,
}

var historyOverrideCmd = &cobra.Command{
	Use:   "override [id]",
	Short: "Mark a scan as posted despite the warning",
	Args:  cobra.ExactArgs(1),
	RunE:  historyOverride,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest records",
	RunE:  historyPrune,
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export settings, scan records and analytics as JSON",
	RunE:  historyExport,
}

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Summarise the scan history",
	RunE:  runAnalytics,
}

func init() {
	historyListCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum records")
	historyListCmd.Flags().StringVar(&historyKind, "kind", "", "only text or image scans")
	historyListCmd.Flags().DurationVar(&historySince, "since", 0, "only scans newer than this (e.g. 24h)")
	historyListCmd.Flags().BoolVar(&historyJSON, "json", false, "print records as JSON")
	historyPruneCmd.Flags().IntVar(&historyKeep, "keep", 0, "records to keep (default history_retention)")
	historyExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to this file instead of stdout")
	analyticsCmd.Flags().IntVar(&analyticsDays, "days", history.DefaultAnalyticsDays, "days of daily activity")
	analyticsCmd.Flags().BoolVar(&analyticsJSON, "json", false, "print as JSON")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyVerifyCmd)
	historyCmd.AddCommand(historyOverrideCmd)
	historyCmd.AddCommand(historyPruneCmd)
	historyCmd.AddCommand(historyExportCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(analyticsCmd)
}

func withHistory(cmd *cobra.Command, fn func(ctx context.Context, store *history.Store, keep int) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openHistoryStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, store, cfg.HistoryRetention)
}

func historyList(cmd *cobra.Command, args []string) error {
	f := history.Filter{Kind: historyKind, Limit: historyLimit}
	if historySince > 0 {
		f.Since = time.Now().Add(-historySince)
	}
	return withHistory(cmd, func(ctx context.Context, store *history.Store, _ int) error {
		records, err := store.List(ctx, f)
		if err != nil {
			return fmt.Errorf("listing scans: %w", err)
		}
		out := cmd.OutOrStdout()
		if historyJSON {
			return writeJSON(out, records)
		}
		if len(records) == 0 {
			fmt.Fprintln(out, "No scans recorded yet.")
			return nil
		}
		for _, r := range records {
			flag := " "
			if r.Overridden {
				flag = "!"
			}
			fmt.Fprintf(out, "%s %s | %-5s | %-8s | %-5s | %d finding(s) %s | %s\n",
				flag, r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Kind, r.OverallSeverity,
				r.Verdict, r.FindingCount, strings.Join(r.Categories, ","), r.ID)
		}
		return nil
	})
}

func historyVerify(cmd *cobra.Command, args []string) error {
	return withHistory(cmd, func(ctx context.Context, store *history.Store, _ int) error {
		ok, err := store.Verify(ctx, args[0])
		if err != nil {
			return fmt.Errorf("verifying scan: %w", err)
		}
		if !ok {
			return fmt.Errorf("scan %s: signature INVALID (record modified or signed with another key)", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Scan %s: signature valid\n", args[0])
		return nil
	})
}

func historyOverride(cmd *cobra.Command, args []string) error {
	return withHistory(cmd, func(ctx context.Context, store *history.Store, _ int) error {
		rec, err := store.MarkOverridden(ctx, args[0])
		if err != nil {
			return fmt.Errorf("overriding scan: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Scan %s marked as overridden (verdict was %s)\n", rec.ID, rec.Verdict)
		return nil
	})
}

func historyPrune(cmd *cobra.Command, args []string) error {
	return withHistory(cmd, func(ctx context.Context, store *history.Store, keep int) error {
		if historyKeep > 0 {
			keep = historyKeep
		}
		n, err := store.Prune(ctx, keep)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %d record(s)\n", n)
		return nil
	})
}

func runAnalytics(cmd *cobra.Command, args []string) error {
	return withHistory(cmd, func(ctx context.Context, store *history.Store, _ int) error {
		a, err := store.Analytics(ctx, analyticsDays)
		if err != nil {
			return fmt.Errorf("computing analytics: %w", err)
		}
		out := cmd.OutOrStdout()
		if analyticsJSON {
			return writeJSON(out, a)
		}
		fmt.Fprintf(out, "Total scans:  %d\n", a.TotalScans)
		fmt.Fprintf(out, "Risky posts:  %d\n", a.RiskyPosts)
		fmt.Fprintf(out, "Overrides:    %d\n", a.Overrides)
		fmt.Fprintf(out, "Risk levels:  low %d, medium %d, high %d\n",
			a.RiskDistribution["low"], a.RiskDistribution["medium"], a.RiskDistribution["high"])
		if len(a.DetectionStats) > 0 {
			fmt.Fprintln(out, "Detections:")
			for _, class := range sortedKeys(a.DetectionStats) {
				fmt.Fprintf(out, "  %-18s %d\n", class, a.DetectionStats[class])
			}
		}
		if len(a.DailyActivity) > 0 {
			fmt.Fprintf(out, "Last %d days:\n", analyticsDays)
			for _, d := range a.DailyActivity {
				fmt.Fprintf(out, "  %s  %3d scans  %3d risky\n", d.Date, d.Scans, d.Risky)
			}
		}
		return nil
	})
}

func historyExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openHistoryStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	e, err := store.Export(ctx)
	if err != nil {
		return fmt.Errorf("exporting scans: %w", err)
	}
	e.Version = resolvedVersion()
	e.Settings = cfg.Masked()

	var out io.Writer = cmd.OutOrStdout()
	if exportOutput != "" {
		f, err := os.OpenFile(exportOutput, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("creating export file: %w", err)
		}
		defer f.Close()
		out = f
	}
	if err := writeJSON(out, e); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	if exportOutput != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Exported %d record(s) to %s\n", len(e.Records), exportOutput)
	}
	return nil
}
