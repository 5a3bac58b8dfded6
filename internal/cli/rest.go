package cli

import (
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"el2mcp/internal/rest"
)

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Start the plain REST API",
	RunE:  runREST,
}

func init() {
	addServerFlags(restCmd)
}

func runREST(_ *cobra.Command, _ []string) error {
	cfg, client, ledger, logger := loadRuntime()

	handler := rest.NewHandler(cfg, client, ledger, logger).Router()

	listener, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		exitWith(ExitBindFailure, "ERROR: bind "+cfg.ListenAddr()+": "+err.Error())
	}

	if !globalFlags.Quiet {
		s := newStyles(os.Stdout)
		fmt.Println(s.banner(), "REST API")
		fmt.Println(s.kv("Base URL", s.url("http://"+listener.Addr().String())))
		if cfg.RESTAPIKey == "" {
			fmt.Println(s.kv("Auth", "disabled (no EL2MCP_API_KEY set)"))
		} else {
			fmt.Println(s.kv("Auth", "X-Api-Key required"))
		}
	}

	return serveWithShutdown(&http.Server{Handler: handler}, listener, ledger, logger)
}
