package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aafreen2203/SafePostAI/internal/content"
	"github.com/Aafreen2203/SafePostAI/internal/scan"
)

var (
	scanJSON    bool
	scanReveal  bool
	scanFailOn  string
	scanTimeout time.Duration
)

// ErrBlocked is returned when --fail-on matches the verdict, so scripts can
// gate on the exit status.
var ErrBlocked = errors.New("post flagged")

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan a post before publishing it",
}

var scanTextCmd = &cobra.Command{
	Use:   "text [text]",
	Short: "Scan text (reads stdin when no argument or \"-\" is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runScanText,
}

var scanImageCmd = &cobra.Command{
	Use:   "image [path]",
	Short: "Scan an image file",
	Args:  cobra.ExactArgs(1),
	RunE:  runScanImage,
}

func init() {
	for _, c := range []*cobra.Command{scanTextCmd, scanImageCmd} {
		c.Flags().BoolVar(&scanJSON, "json", false, "print the full result as JSON")
		c.Flags().BoolVar(&scanReveal, "reveal", false, "print matched values unmasked")
		c.Flags().StringVar(&scanFailOn, "fail-on", "", "exit non-zero on this verdict or worse (warn, block)")
		c.Flags().DurationVar(&scanTimeout, "timeout", 2*time.Minute, "overall scan timeout")
		scanCmd.AddCommand(c)
	}
	rootCmd.AddCommand(scanCmd)
}

func readScanText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(b), nil
}

func runScanText(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), scanTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "scan.text")
	defer span.End()

	text, err := readScanText(cmd, args)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("nothing to scan")
	}
	return runScan(ctx, cmd, func(a *app) (*scan.Result, error) {
		return a.service.ScanText(ctx, text)
	})
}

func runScanImage(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), scanTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "scan.image")
	defer span.End()

	return runScan(ctx, cmd, func(a *app) (*scan.Result, error) {
		img, _, err := content.NewImageDecoder(a.cfg.MaxImageMB).ReadFile(ctx, args[0])
		if err != nil {
			return nil, err
		}
		return a.service.ScanImageBytes(ctx, img)
	})
}

func runScan(ctx context.Context, cmd *cobra.Command, do func(*app) (*scan.Result, error)) error {
	failOn, err := parseFailOn(scanFailOn)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := do(a)
	if err != nil {
		return fmt.Errorf("scanning: %w", err)
	}

	out := cmd.OutOrStdout()
	if scanJSON {
		if err := writeJSON(out, res); err != nil {
			return err
		}
	} else {
		writeResult(out, res, scanReveal)
	}

	if failOn > 0 && actionRank[res.Verdict.Action] >= failOn {
		return fmt.Errorf("%w: verdict %s", ErrBlocked, res.Verdict.Action)
	}
	return nil
}

var actionRank = map[string]int{"allow": 0, "warn": 1, "block": 2}

func parseFailOn(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	rank, ok := actionRank[strings.ToLower(s)]
	if !ok || rank == 0 {
		return 0, fmt.Errorf("--fail-on must be warn or block, got %q", s)
	}
	return rank, nil
}
