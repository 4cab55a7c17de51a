package cmd

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Aafreen2203/SafePostAI/internal/config"
)

var configShowJSON bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect SafePost configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration (keys masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "config.show")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		out := cmd.OutOrStdout()
		masked := cfg.Masked()
		if configShowJSON {
			return writeJSON(out, masked)
		}
		if f := viper.ConfigFileUsed(); f != "" {
			fmt.Fprintf(out, "# config file: %s\n", f)
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(masked)
	},
}

func init() {
	configShowCmd.Flags().BoolVar(&configShowJSON, "json", false, "print as JSON")
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
