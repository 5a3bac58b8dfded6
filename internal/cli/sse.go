package cli

import (
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"el2mcp/internal/mcp"
	"el2mcp/internal/sse"
)

var sseCmd = &cobra.Command{
	Use:   "sse",
	Short: "Start the MCP server over the SSE transport",
	RunE:  runSSE,
}

func init() {
	addServerFlags(sseCmd)
}

func runSSE(_ *cobra.Command, _ []string) error {
	cfg, client, ledger, logger := loadRuntime()

	core := mcp.NewServer(cfg, client, ledger, logger)
	handler := sse.NewServer(cfg, core, logger).Router()

	listener, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		exitWith(ExitBindFailure, "ERROR: bind "+cfg.ListenAddr()+": "+err.Error())
	}

	if !globalFlags.Quiet {
		s := newStyles(os.Stdout)
		fmt.Println(s.banner(), "MCP server (SSE)")
		fmt.Println(s.kv("Stream", s.url("http://"+listener.Addr().String()+"/sse")))
		fmt.Println(s.kv("Messages", s.url("http://"+listener.Addr().String()+"/messages")))
		fmt.Println(s.kv("Output mode", string(cfg.OutputMode)))
	}

	return serveWithShutdown(&http.Server{Handler: handler}, listener, ledger, logger)
}
