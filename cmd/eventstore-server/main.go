// Command eventstore-server runs the multi-tenant event store's Connect
// RPC façade against either the in-memory or the SQLite storage engine,
// wired with tenant extraction, bearer-token authentication, panic
// recovery, structured logging, and OpenTelemetry tracing/metrics.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	_ "gocloud.dev/secrets/localsecrets"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	_ "modernc.org/sqlite"

	"github.com/plaenen/tenant-eventstore/pkg/bus/natsbridge"
	"github.com/plaenen/tenant-eventstore/pkg/middleware"
	"github.com/plaenen/tenant-eventstore/pkg/multitenancy"
	"github.com/plaenen/tenant-eventstore/pkg/observability"
	"github.com/plaenen/tenant-eventstore/pkg/rpc"
	"github.com/plaenen/tenant-eventstore/pkg/runner"
	"github.com/plaenen/tenant-eventstore/pkg/security/credentials"
	"github.com/plaenen/tenant-eventstore/pkg/store"
	"github.com/plaenen/tenant-eventstore/pkg/store/memory"
	"github.com/plaenen/tenant-eventstore/pkg/store/sqlite"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx := context.Background()

	engine, closeEngine, err := buildEngine(ctx)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer closeEngine()

	provider, closeProvider, err := buildCredentialProvider(ctx)
	if err != nil {
		return fmt.Errorf("build credential provider: %w", err)
	}
	defer closeProvider()

	tel, err := buildTelemetry(ctx, logger)
	if err != nil {
		return fmt.Errorf("build telemetry: %w", err)
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	svc := rpc.New(engine)
	// Interceptors run outermost-first: Recovery must see every panic,
	// Logging must see every outcome including rejected auth, so it wraps
	// BearerAuth rather than the other way around.
	handler := rpc.NewHandler(svc,
		middleware.NewRecoveryInterceptor(logger),
		multitenancy.NewInterceptor(),
		middleware.NewLoggingInterceptor(logger),
		middleware.NewBearerAuthInterceptor(provider),
		observability.NewInterceptor(tel),
	)

	addr := envOr("ADDR", ":8080")
	httpSvc := &httpService{addr: addr, handler: handler}

	r := runner.New([]runner.Service{httpSvc}, runner.WithLogger(slogRunnerLogger{logger}))
	return r.Run(ctx)
}

// buildEngine selects the storage engine from BACKEND (memory|sqlite,
// default memory) and, if NATS_URL is set, wraps it in the cross-process
// fan-out bridge.
func buildEngine(ctx context.Context) (store.EventStore, func(), error) {
	var engine store.EventStore

	switch backend := envOr("BACKEND", "memory"); backend {
	case "memory":
		engine = memory.New()
	case "sqlite":
		dsn := envOr("SQLITE_DSN", "file:eventstore.db?cache=shared")
		autoMigrate := envBool("SQLITE_AUTO_MIGRATE", true)
		eng, err := sqlite.New(
			sqlite.WithDSN(dsn),
			sqlite.WithWALMode(true),
			sqlite.WithAutoMigrate(autoMigrate),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite engine: %w", err)
		}
		engine = eng
	default:
		return nil, nil, fmt.Errorf("unknown BACKEND %q (want memory or sqlite)", backend)
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		bridged, err := natsbridge.New(engine, natsbridge.Config{URL: natsURL})
		if err != nil {
			return nil, nil, fmt.Errorf("connect nats bridge: %w", err)
		}
		engine = bridged
	}

	return engine, func() { _ = engine.Close() }, nil
}

// buildCredentialProvider resolves the bearer token either directly from
// AUTH_TOKEN (development) or from a gocloud.dev/secrets keeper URL in
// AUTH_SECRET_URL. This binary registers only the localsecrets driver, so
// base64key:// is the only keeper scheme it can open.
func buildCredentialProvider(ctx context.Context) (credentials.Provider, func(), error) {
	if secretURL := os.Getenv("AUTH_SECRET_URL"); secretURL != "" {
		p, err := credentials.NewSecretProvider(ctx, secretURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open secret provider: %w", err)
		}
		return p, func() { _ = p.Close() }, nil
	}

	token := os.Getenv("AUTH_TOKEN")
	if token == "" {
		return nil, nil, fmt.Errorf("one of AUTH_TOKEN or AUTH_SECRET_URL must be set")
	}
	p := credentials.NewStaticTokenProvider(token, 0)
	return p, func() {}, nil
}

// buildTelemetry wires OTel tracing/metrics. When OTEL_TRACES_ENABLED is
// not "false" and OTEL_SQLITE_DB is set, spans and metrics are written to a
// local SQLite database (the teacher's SQLiteTraceExporter/
// SQLiteMetricExporter) — a zero-dependency backend suitable for a
// single-instance deployment without an OTLP collector. Without one or the
// other, telemetry runs in no-op mode per Telemetry.Init's graceful
// degradation.
func buildTelemetry(ctx context.Context, logger *slog.Logger) (*observability.Telemetry, error) {
	cfg := observability.Config{
		ServiceName:     envOr("OTEL_SERVICE_NAME", "tenant-eventstore"),
		ServiceVersion:  envOr("SERVICE_VERSION", "dev"),
		Environment:     envOr("ENVIRONMENT", "dev"),
		TraceSampleRate: envFloat("OTEL_TRACE_SAMPLE_RATE", 1.0),
		Logger:          logger,
	}

	if dbPath := os.Getenv("OTEL_SQLITE_DB"); envBool("OTEL_TRACES_ENABLED", true) && dbPath != "" {
		db, err := sql.Open("sqlite", dbPath)
		if err != nil {
			return nil, fmt.Errorf("open otel sqlite db: %w", err)
		}

		exporterCfg := observability.DefaultSQLiteExporterConfig(db)

		traceExporter, err := observability.NewSQLiteTraceExporter(exporterCfg)
		if err != nil {
			return nil, fmt.Errorf("create sqlite trace exporter: %w", err)
		}
		cfg.TraceExporter = traceExporter

		metricExporter, err := observability.NewSQLiteMetricExporter(exporterCfg)
		if err != nil {
			return nil, fmt.Errorf("create sqlite metric exporter: %w", err)
		}
		cfg.MetricReader = sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(15*time.Second))
	}

	return observability.Init(ctx, cfg)
}

var _ sdktrace.SpanExporter = (*observability.SQLiteTraceExporter)(nil)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// httpService adapts the Connect handler to runner.Service so its
// lifecycle is managed by the same Runner every other service in this
// process uses.
type httpService struct {
	addr    string
	handler http.Handler
	srv     *http.Server
}

func (s *httpService) Name() string { return "eventstore-rpc" }

func (s *httpService) Start(ctx context.Context) error {
	// h2c lets Subscribe's server-streaming RPC run over HTTP/2 without a
	// TLS terminator in front of this process (typical behind an
	// in-cluster load balancer that handles TLS itself).
	h2s := &http2.Server{}
	s.srv = &http.Server{Addr: s.addr, Handler: h2c.NewHandler(s.handler, h2s)}
	ln := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			ln <- err
		}
	}()
	select {
	case err := <-ln:
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

func (s *httpService) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// slogRunnerLogger adapts *slog.Logger to runner.Logger.
type slogRunnerLogger struct {
	logger *slog.Logger
}

func (l slogRunnerLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, keysAndValues...)
}

func (l slogRunnerLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, keysAndValues...)
}

func (l slogRunnerLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}
