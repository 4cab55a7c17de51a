package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aafreen2203/SafePostAI/internal/pipeline"
	"github.com/Aafreen2203/SafePostAI/internal/secrets"
)

var secretsAuditLimit int

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage provider credentials (encrypted at rest)",
	Long: "Provider credentials live only in the encrypted credential store. Known names: " +
		strings.Join(pipeline.CredentialNames, ", ") + ".",
}

var secretsSetCmd = &cobra.Command{
	Use:   "set [name] [value]",
	Short: "Store a credential (reads the value from stdin when omitted or \"-\")",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  secretsSet,
}

var secretsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List credentials (metadata only, values not shown)",
	RunE:  secretsList,
}

var secretsDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Remove a credential",
	Args:  cobra.ExactArgs(1),
	RunE:  secretsDelete,
}

var secretsAuditCmd = &cobra.Command{
	Use:   "audit [name]",
	Short: "View the credential access log",
	Args:  cobra.MaximumNArgs(1),
	RunE:  secretsAudit,
}

func init() {
	secretsAuditCmd.Flags().IntVar(&secretsAuditLimit, "limit", 50, "maximum entries")
	secretsCmd.AddCommand(secretsSetCmd)
	secretsCmd.AddCommand(secretsListCmd)
	secretsCmd.AddCommand(secretsDeleteCmd)
	secretsCmd.AddCommand(secretsAuditCmd)
	rootCmd.AddCommand(secretsCmd)
}

func withSecrets(cmd *cobra.Command, fn func(ctx context.Context, store *secrets.Store) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openSecretsStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, store)
}

func isKnownCredential(name string) bool {
	for _, n := range pipeline.CredentialNames {
		if n == name {
			return true
		}
	}
	return false
}

func secretsSet(cmd *cobra.Command, args []string) error {
	name := args[0]
	value := ""
	if len(args) == 2 && args[1] != "-" {
		value = args[1]
	} else {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading value from stdin: %w", err)
		}
		value = strings.TrimSpace(string(b))
	}
	if value == "" {
		return fmt.Errorf("empty value for %q", name)
	}

	return withSecrets(cmd, func(ctx context.Context, store *secrets.Store) error {
		if err := store.Set(ctx, name, value); err != nil {
			return fmt.Errorf("storing credential: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ Credential '%s' stored (encrypted at rest)\n", name)
		if !isKnownCredential(name) {
			fmt.Fprintf(out, "⚠ '%s' is not read by any analyzer (known: %s)\n", name, strings.Join(pipeline.CredentialNames, ", "))
		}
		return nil
	})
}

func secretsList(cmd *cobra.Command, args []string) error {
	return withSecrets(cmd, func(ctx context.Context, store *secrets.Store) error {
		list, err := store.List(ctx)
		if err != nil {
			return fmt.Errorf("listing credentials: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "No credentials stored yet. Scans use the pattern library only.")
			return nil
		}
		fmt.Fprintln(out, "Credentials (metadata only, values not shown):")
		for _, m := range list {
			fmt.Fprintf(out, "  - %s (updated %s, accessed %d times)\n",
				m.Name, m.UpdatedAt.Format("2006-01-02 15:04"), m.AccessCount)
		}
		return nil
	})
}

func secretsDelete(cmd *cobra.Command, args []string) error {
	return withSecrets(cmd, func(ctx context.Context, store *secrets.Store) error {
		if err := store.Delete(ctx, args[0]); err != nil {
			return fmt.Errorf("deleting credential: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Credential '%s' deleted\n", args[0])
		return nil
	})
}

func secretsAudit(cmd *cobra.Command, args []string) error {
	name := ""
	if len(args) == 1 {
		name = args[0]
	}
	return withSecrets(cmd, func(ctx context.Context, store *secrets.Store) error {
		records, err := store.AccessLog(ctx, name, secretsAuditLimit)
		if err != nil {
			return fmt.Errorf("fetching access log: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(records) == 0 {
			fmt.Fprintln(out, "No credential access records yet.")
			return nil
		}
		fmt.Fprintf(out, "Credential access log (last %d):\n", secretsAuditLimit)
		for _, r := range records {
			status := "✓"
			if !r.Found {
				status = "✗"
			}
			fmt.Fprintf(out, "  %s | %s %-6s | %-14s | %s\n",
				r.Timestamp.Format("2006-01-02 15:04:05"), status, r.Action, r.Name, r.Caller)
		}
		return nil
	})
}
