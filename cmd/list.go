package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chenhan1218/autopilot/internal/introspection"
	"github.com/chenhan1218/autopilot/internal/output"
	"github.com/chenhan1218/autopilot/internal/transport"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List applications exposing an introspection endpoint",
	Long:  "Enumerate the introspection sources currently on the bus, in discovery order. Re-run to re-enumerate live connections.",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().Int("pid", 0, "Filter to a specific process by PID")
}

// listResult is the top-level output of the list command.
type listResult struct {
	OK      bool                       `yaml:"ok"      json:"ok"`
	Action  string                     `yaml:"action"  json:"action"`
	Sources []introspection.SourceInfo `yaml:"sources" json:"sources"`
}

func runList(cmd *cobra.Command, args []string) error {
	pid, _ := cmd.Flags().GetInt("pid")

	bus := transport.NewWireBus(busAddr(cmd))
	sources, err := bus.ListSources(cmd.Context())
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}

	if pid != 0 {
		var filtered []introspection.SourceInfo
		for _, s := range sources {
			if s.PID == pid {
				filtered = append(filtered, s)
			}
		}
		sources = filtered
	}

	if sources == nil {
		sources = []introspection.SourceInfo{}
	}
	return output.Print(listResult{OK: true, Action: "list", Sources: sources})
}
