package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"el2mcp/internal/config"
	"el2mcp/internal/elevenlabs"
	"el2mcp/internal/mcp"
	"el2mcp/internal/output"
	"el2mcp/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over streamable HTTP",
	RunE:  runServe,
}

var (
	flagHost       string
	flagPort       int
	flagOutputMode string
	flagBasePath   string
	serveMCPPath   string
)

// addServerFlags registers the listen/delivery overrides shared by the three
// server commands.
func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagHost, "host", "", "host to bind (overrides config)")
	cmd.Flags().IntVar(&flagPort, "port", 0, "port to bind (overrides config)")
	cmd.Flags().StringVar(&flagOutputMode, "output-mode", "", "artifact delivery mode: files|resources|both")
	cmd.Flags().StringVar(&flagBasePath, "base-path", "", "sandbox root for generated files")
}

func init() {
	addServerFlags(serveCmd)
	serveCmd.Flags().StringVar(&serveMCPPath, "mcp-path", "/mcp", "HTTP path for the MCP endpoint")
}

// loadRuntime builds the validated config plus the shared vendor client and
// ledger. Flag overrides win over every config source.
func loadRuntime() (config.Config, *elevenlabs.Client, *store.Ledger, *log.Logger) {
	cfg, err := config.Load(globalFlags.ConfigPath)
	if err != nil {
		exitWith(ExitConfigInvalid, "ERROR: "+err.Error())
	}
	if flagHost != "" {
		cfg.Host = flagHost
	}
	if flagPort != 0 {
		cfg.Port = flagPort
	}
	if flagOutputMode != "" {
		cfg.OutputMode = output.Mode(flagOutputMode)
	}
	if flagBasePath != "" {
		cfg.BasePath = flagBasePath
	}
	if err := config.Validate(&cfg); err != nil {
		exitWith(ExitConfigInvalid, "ERROR: "+err.Error())
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)

	var ledger *store.Ledger
	if cfg.LedgerPath != "" {
		ledger = store.NewLedger(cfg.LedgerPath)
		if err := ledger.Init(context.Background()); err != nil {
			logger.Printf("ledger: init %s: %v (recording disabled)", cfg.LedgerPath, err)
			ledger = nil
		}
	}

	return cfg, elevenlabs.NewClient(cfg.APIKey, cfg.BaseURL), ledger, logger
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, client, ledger, logger := loadRuntime()

	core := mcp.NewServer(cfg, client, ledger, logger)
	mux := http.NewServeMux()
	mux.Handle(serveMCPPath, core)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	listener, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		exitWith(ExitBindFailure, "ERROR: bind "+cfg.ListenAddr()+": "+err.Error())
	}

	if !globalFlags.Quiet {
		s := newStyles(os.Stdout)
		fmt.Println(s.banner(), "MCP server (streamable HTTP)")
		fmt.Println(s.kv("Endpoint", s.url("http://"+listener.Addr().String()+serveMCPPath)))
		fmt.Println(s.kv("Output mode", string(cfg.OutputMode)))
		if cfg.BasePath != "" {
			fmt.Println(s.kv("Base path", cfg.BasePath))
		}
		if cfg.BearerToken != "" {
			fmt.Println(s.kv("Auth", "Bearer token required"))
		}
	}

	return serveWithShutdown(&http.Server{Handler: mux}, listener, ledger, logger)
}

// serveWithShutdown runs srv on listener until SIGINT/SIGTERM, then drains.
func serveWithShutdown(srv *http.Server, listener net.Listener, ledger *store.Ledger, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Println("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("shutdown: %v", err)
		}
	}

	if ledger != nil {
		if err := ledger.Close(); err != nil {
			logger.Printf("ledger: close: %v", err)
		}
	}
	return nil
}
