package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/hrgate/internal/adapter/inbound/http"
	"github.com/Sentinel-Gate/hrgate/internal/adapter/inbound/stdio"
	"github.com/Sentinel-Gate/hrgate/internal/config"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Serve the tools over stdio or HTTP",
	Long: `Start the hrgate MCP server.

The server runs over one of two transports:

1. stdio (default): newline-delimited JSON-RPC on stdin/stdout, for MCP
   clients that launch hrgate as a subprocess.

2. HTTP: Streamable HTTP on /mcp, with /health and /metrics. Requests
   must carry an API key from auth.api_keys unless --dev is set and no
   keys are configured.

Examples:
  # stdio, credentials from the environment
  SF_API_URL=https://api.example.com/odata/v2 SF_USERNAME=admin@ACME \
    SF_PASSWORD=... hrgate start

  # HTTP on a custom address
  hrgate start --http 0.0.0.0:8080

  # With a specific config file
  hrgate --config /path/to/hrgate.yaml start`,
	RunE: runStart,
}

var (
	devMode  bool
	httpAddr string
)

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, keyless HTTP when no keys are configured)")
	startCmd.Flags().StringVar(&httpAddr, "http", "", "Serve over HTTP on this address instead of stdio")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, _ []string) error {
	// Load without validation so CLI flags can override first.
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	if httpAddr != "" {
		cfg.Server.Transport = config.TransportHTTP
		cfg.Server.HTTPAddr = httpAddr
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	// Logs go to stderr; stdout is reserved for the stdio transport.
	logger := newLogger(os.Stderr, cfg.LogLevel)
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}
	if cfg.DevMode {
		logger.Warn("development mode enabled")
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}
	logger.Info("hrgate stopped")
	return nil
}

// run wires the components and serves until ctx is cancelled or the
// transport ends.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := buildApp(cfg, logger, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()
	a.Start(ctx)

	config.WatchConfig(logger, cfg.DevMode, a.ReloadPolicy)

	logger.Info("directory configured",
		"base_url", cfg.Directory.BaseURL,
		"person_entity", cfg.Directory.PersonEntity,
		"strict_fields", cfg.Directory.StrictFields,
		"tools", a.tools.Len(),
	)

	switch cfg.Server.Transport {
	case config.TransportHTTP:
		return serveHTTP(ctx, a, logger)
	default:
		logger.Info("serving on stdio")
		return stdio.NewStdioTransport(a.server).Start(ctx)
	}
}

func serveHTTP(ctx context.Context, a *app, logger *slog.Logger) error {
	cfg := a.cfg
	opts := []http.Option{
		http.WithAddr(cfg.Server.HTTPAddr),
		http.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		http.WithLogger(logger),
		http.WithAuthenticator(a.keyring, a.anonymousIdentity()),
		http.WithMetrics(a.registry, a.metrics),
		http.WithHealthChecker(http.NewHealthChecker(a.limiter, a.audit, Version)),
	}
	if cfg.Server.TLSCert != "" {
		opts = append(opts, http.WithTLS(cfg.Server.TLSCert, cfg.Server.TLSKey))
	}
	transport := http.NewHTTPTransport(a.server, opts...)

	// Write PID file so "hrgate stop" can find us.
	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer func() { _ = os.Remove(pidPath) }()
	}

	printBanner(Version, cfg.Server.HTTPAddr, cfg.Server.TLSCert != "", cfg.AnonymousAllowed(), a.tools.Len())
	return transport.Start(ctx)
}

// printBanner prints a startup banner to stderr. Only used for HTTP, where
// stdout is free but the banner still belongs with the logs.
func printBanner(version, addr string, tlsEnabled, anonymous bool, toolCount int) {
	const (
		reset  = "\033[0m"
		bold   = "\033[1m"
		cyan   = "\033[36m"
		green  = "\033[32m"
		yellow = "\033[33m"
		dim    = "\033[2m"
	)

	scheme := "http"
	if tlsEnabled {
		scheme = "https"
	}
	host := addr
	if strings.HasPrefix(addr, ":") {
		host = "localhost" + addr
	}

	authStr := green + "API key" + reset
	if anonymous {
		authStr = yellow + "none" + reset + dim + " (dev mode)" + reset
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  %s%s hrgate %s%s\n", bold, cyan, version, reset)
	fmt.Fprintf(os.Stderr, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "  %-10s %s://%s/mcp\n", "MCP:", scheme, host)
	fmt.Fprintf(os.Stderr, "  %-10s %s://%s/metrics\n", "Metrics:", scheme, host)
	fmt.Fprintf(os.Stderr, "  %-10s %s\n", "Auth:", authStr)
	fmt.Fprintf(os.Stderr, "  %-10s %d\n", "Tools:", toolCount)
	fmt.Fprintf(os.Stderr, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "\n")
}
