package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"postboard/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

type AppMetrics struct {
	authLoginCounter        metric.Int64Counter
	authRefreshCounter      metric.Int64Counter
	authLogoutCounter       metric.Int64Counter
	repoOpCounter           metric.Int64Counter
	tokenValidationCounter  metric.Int64Counter
	auditLogFailureCounter  metric.Int64Counter
	suspiciousEventCounter  metric.Int64Counter
	rateLimitCounter        metric.Int64Counter
	cleanupSweepCounter     metric.Int64Counter
	cleanupPurgedRowCounter metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	meter := mp.Meter("postboard")
	m := &AppMetrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
	}{
		{&m.authLoginCounter, "auth.login.attempts"},
		{&m.authRefreshCounter, "auth.refresh.attempts"},
		{&m.authLogoutCounter, "auth.logout.attempts"},
		{&m.repoOpCounter, "repository.operations"},
		{&m.tokenValidationCounter, "auth.access_token.validations"},
		{&m.auditLogFailureCounter, "audit.log.failures"},
		{&m.suspiciousEventCounter, "audit.suspicious.events"},
		{&m.rateLimitCounter, "rate_limit.decisions"},
		{&m.cleanupSweepCounter, "cleanup.sweeps"},
		{&m.cleanupPurgedRowCounter, "cleanup.purged_rows"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name)
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func current() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordAuthLogin(status string) {
	m := current()
	if m == nil {
		return
	}
	m.authLoginCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordAuthRefresh(status string) {
	m := current()
	if m == nil {
		return
	}
	m.authRefreshCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordAuthLogout(status string) {
	m := current()
	if m == nil {
		return
	}
	m.authLogoutCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordRepositoryOperation(ctx context.Context, entity, op, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.repoOpCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

func RecordAccessTokenValidation(ctx context.Context, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.tokenValidationCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordAuditLogFailure makes swallowed audit-trail write errors observable.
// Audit logging is best-effort and must never fail the primary action, so
// this counter is the only escalation path.
func RecordAuditLogFailure(ctx context.Context, action string) {
	m := current()
	if m == nil {
		return
	}
	m.auditLogFailureCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

func RecordSuspiciousEvent(ctx context.Context, action string) {
	m := current()
	if m == nil {
		return
	}
	m.suspiciousEventCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

func RecordRateLimitDecision(ctx context.Context, decision, keyType string) {
	m := current()
	if m == nil {
		return
	}
	m.rateLimitCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("decision", decision),
		attribute.String("key_type", keyType),
	))
}

func RecordCleanupSweep(ctx context.Context, target, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.cleanupSweepCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("target", target),
		attribute.String("outcome", outcome),
	))
}

func RecordCleanupPurgedRows(ctx context.Context, target string, rows int64) {
	m := current()
	if m == nil || rows <= 0 {
		return
	}
	m.cleanupPurgedRowCounter.Add(ctx, rows, metric.WithAttributes(attribute.String("target", target)))
}
