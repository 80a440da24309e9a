package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/chenhan1218/autopilot/internal/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve an introspection bus over websocket",
	Long: `Run the bus endpoint that clients discover and connect through.

With --demo a built-in source with a small fixed tree is published, so
every other command can be tried against it:

  autopilot serve --demo &
  autopilot list
  autopilot query --type Button --attr label=OK --single`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", defaultBusAddr, "Address to listen on")
	serveCmd.Flags().Bool("demo", false, "Publish the built-in demo source")
}

func runServe(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	demo, _ := cmd.Flags().GetBool("demo")

	bus := transport.NewMemoryBus()
	if demo {
		bus = demoBus()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", addr)
	server := &http.Server{Addr: addr, Handler: transport.Handler(bus)}
	return server.ListenAndServe()
}
