package telemetry

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/freekieb7/playlog/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const instrumentationName = "github.com/freekieb7/playlog"

type Telemetry struct {
	tracerProvider *trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	config         config.TelemetryConfig
	logger         *slog.Logger
}

// New creates a telemetry instance with OTLP gRPC exporters for traces and
// metrics. Without an exporter URL the global no-op providers stay in place.
func New(ctx context.Context, cfg config.TelemetryConfig, logger *slog.Logger) (*Telemetry, error) {
	if !cfg.Enabled || cfg.ExporterURL == "" {
		logger.Info("Telemetry disabled or no exporter URL provided")
		return &Telemetry{config: cfg, logger: logger}, nil
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)

	conn, err := exporterConnection(cfg, logger)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(conn.endpoint), otlptracegrpc.WithDialOption(conn.dialOpts...))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	metricExporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(conn.endpoint), otlpmetricgrpc.WithDialOption(conn.dialOpts...))
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(traceExporter),
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(cfg.SamplingRatio))),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("Telemetry initialized successfully",
		"service", cfg.ServiceName,
		"version", cfg.ServiceVersion,
		"environment", cfg.Environment,
		"endpoint", conn.endpoint,
		"sampling_ratio", cfg.SamplingRatio,
	)

	return &Telemetry{
		tracerProvider: tp,
		meterProvider:  mp,
		config:         cfg,
		logger:         logger,
	}, nil
}

type connection struct {
	endpoint string
	dialOpts []grpc.DialOption
}

// exporterConnection resolves the collector endpoint. Local collectors are
// reached without TLS; Grafana Cloud needs TLS plus basic auth metadata.
func exporterConnection(cfg config.TelemetryConfig, logger *slog.Logger) (connection, error) {
	endpoint := strings.TrimPrefix(cfg.ExporterURL, "grpc://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	if !isGrafanaCloud(endpoint) {
		logger.Info("Configuring telemetry for local collector", "endpoint", endpoint)
		return connection{
			endpoint: endpoint,
			dialOpts: []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())},
		}, nil
	}

	if cfg.APIKey == "" || cfg.InstanceID == "" {
		return connection{}, errors.New("grafana cloud api key and instance id are required for remote endpoint")
	}

	authorization := fmt.Sprintf("Basic %s:%s", cfg.InstanceID, cfg.APIKey)
	logger.Info("Configuring telemetry for Grafana Cloud", "endpoint", endpoint)
	return connection{
		endpoint: endpoint,
		dialOpts: []grpc.DialOption{
			grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})),
			grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
				ctx = metadata.AppendToOutgoingContext(ctx, "authorization", authorization)
				return invoker(ctx, method, req, reply, cc, opts...)
			}),
		},
	}, nil
}

func isGrafanaCloud(endpoint string) bool {
	return strings.Contains(endpoint, "grafana.net")
}

// Shutdown flushes and stops the exporters.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error

	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (t *Telemetry) IsEnabled() bool {
	return t.config.Enabled && t.tracerProvider != nil
}

// Tracer returns the tracer used by command handlers.
func Tracer() oteltrace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartSpan opens an internal span on the playlog tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	return Tracer().Start(ctx, name, oteltrace.WithAttributes(attrs...))
}

// EndSpan marks span failed when err is set and ends it.
func EndSpan(span oteltrace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// ResourceType tags a measurement with the kind of shareable record.
func ResourceType(resourceType string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("resource.type", resourceType))
}

// Instruments holds the domain counters.
type Instruments struct {
	GroupsCreated       metric.Int64Counter
	MembersJoined       metric.Int64Counter
	InviteCodesCreated  metric.Int64Counter
	InviteCodesRevoked  metric.Int64Counter
	InviteCodesPurged   metric.Int64Counter
	ResourcesShared     metric.Int64Counter
	InviteRedeemRefused metric.Int64Counter
}

// NewInstruments registers the counters on meter. Pass
// otel.Meter(...) in production and a noop meter in tests.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	var (
		i   Instruments
		err error
	)

	counters := []struct {
		target      *metric.Int64Counter
		name        string
		description string
	}{
		{&i.GroupsCreated, "playlog.groups.created", "Groups created"},
		{&i.MembersJoined, "playlog.groups.members_joined", "Members that joined a group through an invite code"},
		{&i.InviteCodesCreated, "playlog.invite_codes.created", "Invite codes issued"},
		{&i.InviteCodesRevoked, "playlog.invite_codes.revoked", "Invite codes revoked by an owner"},
		{&i.InviteCodesPurged, "playlog.invite_codes.purged", "Expired invite codes removed by the purge daemon"},
		{&i.ResourcesShared, "playlog.resources.shared", "Library entries and play sessions shared with a group"},
		{&i.InviteRedeemRefused, "playlog.invite_codes.redeem_refused", "Invite code redemptions refused by the rate limiter"},
	}
	for _, c := range counters {
		*c.target, err = meter.Int64Counter(c.name, metric.WithDescription(c.description), metric.WithUnit("{count}"))
		if err != nil {
			return nil, fmt.Errorf("failed to create counter %s: %w", c.name, err)
		}
	}

	return &i, nil
}

// DefaultInstruments registers the counters on the global meter provider.
func DefaultInstruments() (*Instruments, error) {
	return NewInstruments(otel.Meter(instrumentationName))
}

// NoopInstruments returns counters that record nothing.
func NoopInstruments() *Instruments {
	i, _ := NewInstruments(noop.NewMeterProvider().Meter(instrumentationName))
	return i
}
