// Command surveyd serves branching surveys over HTTP and plays them from the
// terminal.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/surveyd/pkg/config"
	"github.com/ormasoftchile/surveyd/pkg/survey"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var configPath string

var rootCmd = &cobra.Command{
	Use:          "surveyd",
	Short:        "Branching survey server and player",
	Long:         "surveyd serves question-by-question surveys with branching and plays them in the terminal.",
	SilenceUsage: true,
}

// loadConfig reads the configuration named by --config.
func loadConfig() (*config.Config, error) {
	return config.LoadWith(configPath, os.LookupEnv)
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate [survey.json|survey.yaml]",
	Short: "Validate a survey definition",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	s, errs := survey.ValidateFile(args[0])
	stderr := cmd.ErrOrStderr()

	var failures []*survey.ValidationError
	for _, e := range errs {
		if e.Severity == "warning" {
			fmt.Fprintf(stderr, "  ⚠ [%s] %s\n", e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(stderr, "    at: %s\n", e.Path)
			}
			continue
		}
		failures = append(failures, e)
	}
	if len(failures) > 0 {
		fmt.Fprintf(stderr, "Validation failed: %d error(s)\n\n", len(failures))
		for i, e := range failures {
			fmt.Fprintf(stderr, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(stderr, "     at: %s\n", e.Path)
			}
		}
		return fmt.Errorf("validation failed with %d error(s)", len(failures))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is valid (%d questions)\n", s.ID, s.Len())
	return nil
}

// --- schema ---

var schemaOut string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Export the JSON Schema of a question record",
	RunE:  runSchema,
}

func runSchema(cmd *cobra.Command, args []string) error {
	data, err := survey.GenerateJSONSchema()
	if err != nil {
		return fmt.Errorf("generate schema: %w", err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return fmt.Errorf("format schema: %w", err)
	}
	buf.WriteByte('\n')
	if schemaOut == "" {
		_, err := cmd.OutOrStdout().Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(schemaOut, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ schema written to %s\n", schemaOut)
	return nil
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "surveyd %s (build: %s)\n", version, commit)
	},
}

func splitOrigins(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a surveyd YAML config file")

	schemaCmd.Flags().StringVar(&schemaOut, "out", "", "Write the schema to this file instead of stdout")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveSurveys, "surveys", "", "Directory of survey definitions (overrides config)")
	serveCmd.Flags().StringVar(&serveSQLite, "sqlite", "", "SQLite survey database (overrides config)")
	serveCmd.Flags().StringVar(&serveRedis, "redis", "", "Redis URL for the session store (overrides config)")
	serveCmd.Flags().StringVar(&serveOrigins, "cors", "", "Comma-separated allowed CORS origins (overrides config)")
	serveCmd.MarkFlagsMutuallyExclusive("surveys", "sqlite")

	importCmd.Flags().StringVar(&importSQLite, "sqlite", "", "SQLite survey database to write (required)")
	_ = importCmd.MarkFlagRequired("sqlite")

	for _, c := range []*cobra.Command{playCmd, askCmd} {
		c.Flags().StringVar(&playServer, "server", "", "Base URL of a surveyd server")
		c.Flags().BoolVar(&playLocal, "local", false, "Run the survey in-process using the configured sources")
		c.Flags().StringVar(&playState, "state", "", "Wizard state file (default: user config dir)")
		c.MarkFlagsMutuallyExclusive("server", "local")
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}
