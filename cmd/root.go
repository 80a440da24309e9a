package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chenhan1218/autopilot/internal/output"
	"github.com/chenhan1218/autopilot/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "autopilot",
	Short: "Query and inspect application UI trees over the introspection bus",
	Long:  "A functional-testing tool that discovers running applications exposing an introspection endpoint, queries their live UI object trees, and highlights selected widgets.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// defaultBusAddr is used when neither --bus nor AUTOPILOT_BUS is set.
const defaultBusAddr = "localhost:46238"

func init() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version.Version, version.Commit, version.BuildDate)
	rootCmd.PersistentFlags().String("format", "yaml", "Output format: yaml, json")
	rootCmd.PersistentFlags().Bool("pretty", false, "Pretty-print JSON output")
	rootCmd.PersistentFlags().String("bus", "", "Introspection bus address (default: $AUTOPILOT_BUS or "+defaultBusAddr+")")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		format, _ := rootCmd.PersistentFlags().GetString("format")
		switch format {
		case "yaml":
			output.OutputFormat = output.FormatYAML
		case "json":
			output.OutputFormat = output.FormatJSON
		default:
			return fmt.Errorf("unsupported format: %s (use yaml or json)", format)
		}
		pretty, _ := rootCmd.PersistentFlags().GetBool("pretty")
		output.PrettyOutput = pretty
		return nil
	}
}

// busAddr resolves the bus address from the --bus flag, the environment,
// or the default, in that order.
func busAddr(cmd *cobra.Command) string {
	if addr, _ := cmd.Flags().GetString("bus"); addr != "" {
		return addr
	}
	if addr := os.Getenv("AUTOPILOT_BUS"); addr != "" {
		return addr
	}
	return defaultBusAddr
}
