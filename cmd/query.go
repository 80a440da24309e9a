package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chenhan1218/autopilot/internal/introspection"
	"github.com/chenhan1218/autopilot/internal/output"
	"github.com/chenhan1218/autopilot/internal/query"
	"github.com/chenhan1218/autopilot/internal/transport"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Search a live UI tree for matching nodes",
	Long: `Run a search predicate against an application's introspection tree.
Conditions combine with AND: --type matches the node's type name exactly,
each --attr name=value matches one attribute (case-sensitive for strings).

Examples:
  autopilot query --type Button
  autopilot query --type Button --attr label=OK --single
  autopilot query --attr visible=true --prune`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().String("source", "", "Source id to query (default: the only source on the bus)")
	queryCmd.Flags().String("type", "", "Match nodes with this type name")
	queryCmd.Flags().StringArray("attr", nil, "Match attribute equality, name=value (repeatable)")
	queryCmd.Flags().Bool("single", false, "Require exactly one match; fail on zero or many")
	queryCmd.Flags().Bool("prune", false, "Skip the subtree below each match")
}

// queryResult is the top-level output of the query command.
type queryResult struct {
	OK      bool       `yaml:"ok"                json:"ok"`
	Action  string     `yaml:"action"            json:"action"`
	Query   string     `yaml:"query"             json:"query"`
	Matches []nodeInfo `yaml:"matches"           json:"matches"`
	Total   int        `yaml:"total"             json:"total"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	sourceID, _ := cmd.Flags().GetString("source")
	typeName, _ := cmd.Flags().GetString("type")
	attrs, _ := cmd.Flags().GetStringArray("attr")
	single, _ := cmd.Flags().GetBool("single")
	prune, _ := cmd.Flags().GetBool("prune")

	q, err := buildQuery(typeName, attrs)
	if err != nil {
		return err
	}
	if prune {
		q = q.MatchesAndStop()
	}

	ctx := cmd.Context()
	bus := transport.NewWireBus(busAddr(cmd))
	sess, err := connectSource(ctx, bus, sourceID)
	if err != nil {
		return err
	}
	defer sess.Close()

	root, err := sess.Root(ctx)
	if err != nil {
		return err
	}

	if single {
		p, err := query.SelectSingle(ctx, root, q)
		if err != nil {
			var ambiguous *introspection.AmbiguousMatchError
			if errors.As(err, &ambiguous) {
				// Show all candidates so the author can tighten the query.
				matches, serr := query.Select(ctx, root, q)
				if serr == nil {
					_ = output.Print(queryResult{
						Action:  "query",
						Query:   q.String(),
						Matches: nodeInfos(matches),
						Total:   len(matches),
					})
				}
			}
			return err
		}
		return output.Print(queryResult{
			OK:      true,
			Action:  "query",
			Query:   q.String(),
			Matches: []nodeInfo{nodeInfoFrom(p)},
			Total:   1,
		})
	}

	matches, err := query.Select(ctx, root, q)
	if err != nil {
		return fmt.Errorf("query %s: %w", q.String(), err)
	}
	result := queryResult{
		OK:      true,
		Action:  "query",
		Query:   q.String(),
		Matches: nodeInfos(matches),
		Total:   len(matches),
	}
	if result.Matches == nil {
		result.Matches = []nodeInfo{}
	}
	return output.Print(result)
}
