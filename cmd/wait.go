package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chenhan1218/autopilot/internal/await"
	"github.com/chenhan1218/autopilot/internal/output"
	"github.com/chenhan1218/autopilot/internal/transport"
)

// waitResult is the output of the wait command.
type waitResult struct {
	OK       bool      `yaml:"ok"                 json:"ok"`
	Action   string    `yaml:"action"             json:"action"`
	Query    string    `yaml:"query"              json:"query"`
	Elapsed  string    `yaml:"elapsed"            json:"elapsed"`
	Match    *nodeInfo `yaml:"match,omitempty"    json:"match,omitempty"`
	TimedOut bool      `yaml:"timed_out,omitempty" json:"timed_out,omitempty"`
}

var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for a UI condition to be met",
	Long:  "Poll an application's introspection tree until a node matching the query appears (or, with --gone, disappears) or the timeout elapses.",
	RunE:  runWait,
}

func init() {
	rootCmd.AddCommand(waitCmd)
	waitCmd.Flags().String("source", "", "Source id to query (default: the only source on the bus)")
	waitCmd.Flags().String("type", "", "Wait for a node with this type name")
	waitCmd.Flags().StringArray("attr", nil, "Wait for attribute equality, name=value (repeatable)")
	waitCmd.Flags().Bool("gone", false, "Invert: wait until NO node matches")
	waitCmd.Flags().Int("timeout", 10, "Max seconds to wait")
	waitCmd.Flags().Int("interval", 100, "Initial polling interval in milliseconds (doubles up to 1s)")
}

func runWait(cmd *cobra.Command, args []string) error {
	sourceID, _ := cmd.Flags().GetString("source")
	typeName, _ := cmd.Flags().GetString("type")
	attrs, _ := cmd.Flags().GetStringArray("attr")
	gone, _ := cmd.Flags().GetBool("gone")
	timeoutSec, _ := cmd.Flags().GetInt("timeout")
	intervalMs, _ := cmd.Flags().GetInt("interval")

	q, err := buildQuery(typeName, attrs)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	bus := transport.NewWireBus(busAddr(cmd))
	sess, err := connectSource(ctx, bus, sourceID)
	if err != nil {
		return err
	}
	defer sess.Close()

	timeout := time.Duration(timeoutSec) * time.Second
	opts := await.Options{Interval: time.Duration(intervalMs) * time.Millisecond}
	start := time.Now()

	if gone {
		err = await.UntilGone(ctx, sess, q, timeout, opts)
		if err != nil {
			_ = output.Print(waitResult{
				Action:   "wait",
				Query:    q.String() + " (gone)",
				Elapsed:  fmt.Sprintf("%.1fs", time.Since(start).Seconds()),
				TimedOut: true,
			})
			return err
		}
		return output.Print(waitResult{
			OK:      true,
			Action:  "wait",
			Query:   q.String() + " (gone)",
			Elapsed: fmt.Sprintf("%.1fs", time.Since(start).Seconds()),
		})
	}

	p, err := await.For(ctx, sess, q, timeout, opts)
	if err != nil {
		_ = output.Print(waitResult{
			Action:   "wait",
			Query:    q.String(),
			Elapsed:  fmt.Sprintf("%.1fs", time.Since(start).Seconds()),
			TimedOut: true,
		})
		return err
	}
	info := nodeInfoFrom(p)
	return output.Print(waitResult{
		OK:      true,
		Action:  "wait",
		Query:   q.String(),
		Elapsed: fmt.Sprintf("%.1fs", time.Since(start).Seconds()),
		Match:   &info,
	})
}
