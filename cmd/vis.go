package cmd

import (
	"fmt"
	"image"
	"image/png"
	"os"

	"github.com/spf13/cobra"

	"github.com/chenhan1218/autopilot/internal/introspection"
	"github.com/chenhan1218/autopilot/internal/output"
	"github.com/chenhan1218/autopilot/internal/overlay"
	"github.com/chenhan1218/autopilot/internal/transport"
)

var visCmd = &cobra.Command{
	Use:   "vis",
	Short: "Inspect a live introspection tree",
	Long: `List an application's introspection tree, optionally filtered by a text
search, and highlight a selected node's on-screen rectangle.

The listing is depth-first pre-order. A search matches the node type name
or any string attribute, case-insensitively, and always filters from the
full tree. Selecting a node clears any previous highlight; with --out the
highlight is rendered onto a frame image written as PNG.

Examples:
  autopilot vis
  autopilot vis --search cancel
  autopilot vis --select-id 7 --out highlight.png`,
	RunE: runVis,
}

func init() {
	rootCmd.AddCommand(visCmd)
	visCmd.Flags().String("source", "", "Source id to inspect (default: the only source on the bus)")
	visCmd.Flags().String("search", "", "Filter the listing to nodes matching this text")
	visCmd.Flags().Uint64("select-id", 0, "Highlight the node with this id")
	visCmd.Flags().String("out", "", "Write the highlight frame to this PNG file")
}

// visResult is the top-level output of the vis command.
type visResult struct {
	OK          bool       `yaml:"ok"                    json:"ok"`
	Action      string     `yaml:"action"                json:"action"`
	State       string     `yaml:"state"                 json:"state"`
	Search      string     `yaml:"search,omitempty"      json:"search,omitempty"`
	Nodes       []nodeInfo `yaml:"nodes"                 json:"nodes"`
	Total       int        `yaml:"total"                 json:"total"`
	Highlighted *nodeInfo  `yaml:"highlighted,omitempty" json:"highlighted,omitempty"`
	Frame       string     `yaml:"frame,omitempty"       json:"frame,omitempty"`
}

func runVis(cmd *cobra.Command, args []string) error {
	sourceID, _ := cmd.Flags().GetString("source")
	search, _ := cmd.Flags().GetString("search")
	selectID, _ := cmd.Flags().GetUint64("select-id")
	outFile, _ := cmd.Flags().GetString("out")

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
	frame, origin := blankFrame(root.Snapshot())
	hl := overlay.NewFrameHighlighter(frame)
	sel := overlay.NewSelector(overlay.Translate(hl, origin))
	view := overlay.NewView(sess, sel)

	var nodes []nodeInfo
	if search != "" {
		matches, err := view.Search(ctx, search)
		if err != nil {
			return fmt.Errorf("search %q: %w", search, err)
		}
		nodes = nodeInfos(matches)
	} else {
		matches, err := view.Listing(ctx)
		if err != nil {
			return err
		}
		nodes = nodeInfos(matches)
	}

	result := visResult{
		OK:     true,
		Action: "vis",
		State:  view.State().String(),
		Search: view.SearchText(),
		Nodes:  nodes,
		Total:  len(nodes),
	}

	if selectID != 0 {
		p, err := sess.Proxy(ctx, introspection.NodeID(selectID))
		if err != nil {
			return fmt.Errorf("select node %d: %w", selectID, err)
		}
		if _, _, err := sel.Select(ctx, p); err != nil {
			return err
		}
		info := nodeInfoFrom(p)
		result.Highlighted = &info

		if outFile != "" {
			if err := writePNG(outFile, hl.Frame()); err != nil {
				return err
			}
			result.Frame = outFile
		}
	}

	return output.Print(result)
}

// blankFrame sizes a canvas from the root node's rectangle and returns
// the rectangle's global origin, so highlights drawn in global
// coordinates land at the right frame position. Roots with no geometry
// get a laptop-ish frame at the global origin.
func blankFrame(root introspection.Node) (image.Image, introspection.Point) {
	w, h := 1280, 800
	var origin introspection.Point
	if r, ok := root.Rect(); ok && r.W > 0 && r.H > 0 {
		w, h = int(r.W), int(r.H)
		origin = introspection.Point{X: r.X, Y: r.Y}
	}
	return image.NewRGBA(image.Rect(0, 0, w, h)), origin
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}
