package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Sentinel-Gate/hrgate/internal/adapter/inbound/http"
	"github.com/Sentinel-Gate/hrgate/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/hrgate/internal/adapter/outbound/odata"
	"github.com/Sentinel-Gate/hrgate/internal/adapter/outbound/sqlite"
	"github.com/Sentinel-Gate/hrgate/internal/adapter/outbound/telemetry"
	"github.com/Sentinel-Gate/hrgate/internal/config"
	"github.com/Sentinel-Gate/hrgate/internal/domain/audit"
	"github.com/Sentinel-Gate/hrgate/internal/domain/auth"
	"github.com/Sentinel-Gate/hrgate/internal/domain/dispatch"
	"github.com/Sentinel-Gate/hrgate/internal/domain/tool"
	"github.com/Sentinel-Gate/hrgate/internal/service"
)

// serverInstructions is returned in the initialize result.
const serverInstructions = `Tools for reading and updating employee records in the HR directory.
Any userId argument accepts a user ID, an employee ID or an email address.
Field names are the upper-case names listed by manage_user_fields (action "get").
Use NO_MANAGER or NO_HR to unassign a manager or HR contact.`

// app holds the wired components for one server process.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	telemetry *telemetry.Providers
	directory *service.DirectoryService
	tools     *tool.Registry
	policy    *service.PolicyService
	audit     *service.AuditService
	store     audit.Store
	limiter   *memory.RateLimiter
	registry  *prometheus.Registry
	metrics   *http.Metrics
	keyring   *auth.Keyring
	server    *service.ServerService
}

// buildApp wires the directory client, services, tools and interceptor
// chain described by cfg. telemetryOut receives stdout exporter output.
// Start must be called before serving and Close when done.
func buildApp(cfg *config.Config, logger *slog.Logger, telemetryOut io.Writer) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.telemetry, err = telemetry.Setup(telemetry.Config{
		Traces:         cfg.Telemetry.Traces,
		Metrics:        cfg.Telemetry.Metrics,
		MetricInterval: config.Duration(cfg.Telemetry.MetricInterval, telemetry.DefaultMetricInterval),
		ServiceName:    "hrgate",
		Version:        Version,
		Writer:         telemetryOut,
	})
	if err != nil {
		return a, fmt.Errorf("telemetry: %w", err)
	}

	client, err := odata.NewClient(odata.Config{
		BaseURL:  cfg.Directory.BaseURL,
		Username: cfg.Directory.Username,
		Password: cfg.Directory.Password,
		Timeout:  config.Duration(cfg.Directory.Timeout, odata.DefaultTimeout),
	}, odata.WithTracer(a.telemetry.Tracer()), odata.WithLogger(logger))
	if err != nil {
		return a, err
	}
	a.directory = service.NewDirectoryService(client, cfg.DirectorySettings(), logger)

	a.tools = tool.NewRegistry()
	if err := service.NewDirectoryTools(a.directory, service.ToolOptions{PostMode: cfg.PostMode()}).Register(a.tools); err != nil {
		return a, fmt.Errorf("register tools: %w", err)
	}

	rules, defaultAction := cfg.PolicyRules()
	a.policy, err = service.NewPolicyService(rules, defaultAction, logger)
	if err != nil {
		return a, fmt.Errorf("policy: %w", err)
	}

	a.store, err = openAuditStore(cfg.Audit, os.Stdout, os.Stderr)
	if err != nil {
		return a, err
	}
	a.audit = service.NewAuditService(a.store, logger,
		service.WithChannelSize(cfg.Audit.ChannelSize),
		service.WithBatchSize(cfg.Audit.BatchSize),
		service.WithFlushInterval(config.Duration(cfg.Audit.FlushInterval, time.Second)),
		service.WithSendTimeout(config.Duration(cfg.Audit.SendTimeout, 100*time.Millisecond)),
		service.WithWarningThreshold(cfg.Audit.WarningThreshold),
	)

	a.limiter = memory.NewRateLimiterWithConfig(logger,
		config.Duration(cfg.RateLimit.CleanupInterval, 5*time.Minute),
		config.Duration(cfg.RateLimit.MaxTTL, time.Hour),
	)

	a.registry = http.NewRegistry()
	a.metrics = http.NewMetrics(a.registry)
	a.metrics.RegisterRuntime(a.audit, a.limiter)

	a.keyring, err = cfg.Keyring()
	if err != nil {
		return a, fmt.Errorf("auth: %w", err)
	}

	toolObserver, err := telemetry.NewToolObserver(a.telemetry.Meter())
	if err != nil {
		return a, fmt.Errorf("telemetry: %w", err)
	}
	observer := telemetry.MultiObserver{a.metrics, toolObserver}

	// Validation -> RateLimit -> Audit -> Policy -> ToolRouter
	var chain dispatch.MessageInterceptor = dispatch.NewToolRouter(a.tools,
		dispatch.ServerInfo{Name: "hrgate", Version: Version}, serverInstructions, logger)
	chain = dispatch.NewPolicyInterceptor(a.policy, a.tools, chain, logger)
	chain = dispatch.NewAuditInterceptor(a.audit, observer, chain, logger)
	chain = dispatch.NewRateLimitInterceptor(a.limiter, cfg.RateLimit.Limits(), chain, logger)
	chain = dispatch.NewValidationInterceptor(chain, logger)

	a.server = service.NewServerService(chain, logger)
	return a, nil
}

// Start launches the background workers.
func (a *app) Start(ctx context.Context) {
	a.audit.Start(ctx)
	a.limiter.StartCleanup(ctx)
}

// ReloadPolicy installs the rules from a changed configuration.
func (a *app) ReloadPolicy(cfg *config.Config) {
	rules, defaultAction := cfg.PolicyRules()
	if err := a.policy.Reload(rules, defaultAction); err != nil {
		a.logger.Warn("policy reload rejected, keeping previous rules", "error", err)
	}
}

// Close stops the workers, flushes audit output and shuts telemetry down.
func (a *app) Close() {
	if a.audit != nil {
		a.audit.Stop()
	}
	if a.limiter != nil {
		a.limiter.Stop()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("failed to close audit store", "error", err)
		}
	}
	if a.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.telemetry.Shutdown(ctx); err != nil {
			a.logger.Error("failed to shut down telemetry", "error", err)
		}
	}
}

// anonymousIdentity is the caller used for keyless HTTP requests in dev
// mode, or nil when keys are required.
func (a *app) anonymousIdentity() *auth.Identity {
	if !a.cfg.AnonymousAllowed() {
		return nil
	}
	return &auth.Identity{ID: "anonymous", Name: "Anonymous (dev mode)", Roles: []auth.Role{auth.RoleAdmin}}
}

// auditStore is an audit.Store that can also answer queries.
type auditStore interface {
	audit.Store
	audit.Querier
}

// openAuditStore opens the store named by cfg.Output.
func openAuditStore(cfg config.AuditConfig, stdout, stderr io.Writer) (auditStore, error) {
	switch output := cfg.Output; {
	case output == config.AuditStderr:
		return memory.NewAuditStore(stderr, cfg.BufferSize), nil
	case output == config.AuditStdout:
		return memory.NewAuditStore(stdout, cfg.BufferSize), nil
	case strings.HasPrefix(output, config.AuditFilePrefix):
		path := strings.TrimPrefix(output, config.AuditFilePrefix)
		store, err := memory.OpenFileAuditStore(path, cfg.BufferSize)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit file %s: %w", path, err)
		}
		return store, nil
	case strings.HasPrefix(output, config.AuditSQLitePrefix):
		path := strings.TrimPrefix(output, config.AuditSQLitePrefix)
		store, err := sqlite.OpenAuditStore(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit database %s: %w", path, err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("invalid audit output: %s", output)
	}
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger returns a text logger on w. stdout is never used because it
// carries the stdio JSON-RPC stream.
func newLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLogLevel(level)}))
}
