// Package observability wires OpenTelemetry tracing and metrics for the
// guard: one span and one set of RED measurements per admission cycle, plus
// a decision counter keyed by outcome and denial code.
package observability

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "assetguard"

// Config configures the OpenTelemetry providers.
type Config struct {
	ServiceName    string        `yaml:"service_name"`
	ServiceVersion string        `yaml:"service_version"`
	Environment    string        `yaml:"environment"`
	OTLPEndpoint   string        `yaml:"otlp_endpoint"` // gRPC, e.g. "localhost:4317"
	SampleRate     float64       `yaml:"sample_rate"`
	BatchTimeout   time.Duration `yaml:"batch_timeout"`
	Enabled        bool          `yaml:"enabled"`
	Insecure       bool          `yaml:"insecure"` // dev only
	CertFile       string        `yaml:"cert_file"`
	KeyFile        string        `yaml:"key_file"`
	CAFile         string        `yaml:"ca_file"`
}

// DefaultConfig returns defaults with telemetry disabled.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "assetguard",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4317",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
	}
}

// Provider manages OpenTelemetry trace and metric providers. A disabled
// Provider is safe to use and records nothing.
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	cycles    metric.Int64Counter
	errors    metric.Int64Counter
	duration  metric.Float64Histogram
	active    metric.Int64UpDownCounter
	decisions metric.Int64Counter
}

// New creates a provider.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}
	p := &Provider{
		config: config,
		logger: slog.Default().With("component", "observability"),
	}
	if !config.Enabled {
		p.logger.InfoContext(ctx, "observability disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tlsConfig, err := config.tlsConfig()
	if err != nil {
		return nil, err
	}
	if err := p.initTraceProvider(ctx, res, tlsConfig); err != nil {
		return nil, fmt.Errorf("failed to init trace provider: %w", err)
	}
	if err := p.initMetricProvider(ctx, res, tlsConfig); err != nil {
		return nil, fmt.Errorf("failed to init metric provider: %w", err)
	}

	p.tracer = otel.Tracer(instrumentation, trace.WithInstrumentationVersion(config.ServiceVersion))
	p.meter = otel.Meter(instrumentation, metric.WithInstrumentationVersion(config.ServiceVersion))
	if err := p.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	p.logger.InfoContext(ctx, "observability initialized",
		"service", config.ServiceName,
		"environment", config.Environment,
		"endpoint", config.OTLPEndpoint,
		"sample_rate", config.SampleRate,
		"insecure", config.Insecure,
	)
	return p, nil
}

// tlsConfig returns nil when the system roots should be used.
func (c *Config) tlsConfig() (*tls.Config, error) {
	if c.Insecure || (c.CAFile == "" && c.CertFile == "") {
		return nil, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if c.CAFile != "" {
		pem, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read otlp ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("otlp ca %s: no certificates", c.CAFile)
		}
		cfg.RootCAs = pool
	}
	if c.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load otlp client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

func (p *Provider) initTraceProvider(ctx context.Context, res *resource.Resource, tlsConfig *tls.Config) error {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint)}
	switch {
	case p.config.Insecure:
		opts = append(opts, otlptracegrpc.WithInsecure())
	case tlsConfig != nil:
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentialsFrom(tlsConfig)))
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case p.config.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case p.config.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(p.config.SampleRate)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(p.config.BatchTimeout)),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

func (p *Provider) initMetricProvider(ctx context.Context, res *resource.Resource, tlsConfig *tls.Config) error {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint)}
	switch {
	case p.config.Insecure:
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	case tlsConfig != nil:
		opts = append(opts, otlpmetricgrpc.WithTLSCredentials(credentialsFrom(tlsConfig)))
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create metric exporter: %w", err)
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(p.meterProvider)
	return nil
}

func (p *Provider) initMetrics() error {
	var err error
	if p.cycles, err = p.meter.Int64Counter("assetguard.cycles.total",
		metric.WithDescription("Admission cycles started"),
		metric.WithUnit("{cycle}"),
	); err != nil {
		return err
	}
	if p.errors, err = p.meter.Int64Counter("assetguard.errors.total",
		metric.WithDescription("Admission cycles that ended in an error or denial"),
		metric.WithUnit("{error}"),
	); err != nil {
		return err
	}
	if p.duration, err = p.meter.Float64Histogram("assetguard.cycle.duration",
		metric.WithDescription("Admission cycle duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0),
	); err != nil {
		return err
	}
	if p.active, err = p.meter.Int64UpDownCounter("assetguard.cycles.active",
		metric.WithDescription("Admission cycles in flight"),
		metric.WithUnit("{cycle}"),
	); err != nil {
		return err
	}
	p.decisions, err = p.meter.Int64Counter("assetguard.decisions.total",
		metric.WithDescription("Dispatcher decisions by outcome and denial code"),
		metric.WithUnit("{decision}"),
	)
	return err
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to shutdown trace provider", "error", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			p.logger.ErrorContext(ctx, "failed to shutdown metric provider", "error", err)
		}
	}
	return nil
}

// Tracer returns the configured tracer, or the global one when disabled.
func (p *Provider) Tracer() trace.Tracer {
	if p.tracer == nil {
		return otel.Tracer(instrumentation)
	}
	return p.tracer
}

// Meter returns the configured meter, or the global one when disabled.
func (p *Provider) Meter() metric.Meter {
	if p.meter == nil {
		return otel.Meter(instrumentation)
	}
	return p.meter
}

// RecordDecision counts one dispatcher decision.
func (p *Provider) RecordDecision(ctx context.Context, allowed bool, code string, attrs ...attribute.KeyValue) {
	if p.decisions == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	all := append([]attribute.KeyValue{attribute.String("outcome", outcome), attribute.String("code", code)}, attrs...)
	p.decisions.Add(ctx, 1, metric.WithAttributes(all...))
}

// TrackOperation starts a span and RED measurements for one cycle. Call the
// returned function with the cycle's outcome.
func (p *Provider) TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := p.Tracer().Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	if p.active != nil {
		p.active.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if p.cycles != nil {
		p.cycles.Add(ctx, 1, metric.WithAttributes(attrs...))
	}

	return ctx, func(err error) {
		if p.active != nil {
			p.active.Add(ctx, -1, metric.WithAttributes(attrs...))
		}
		if p.duration != nil {
			p.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
		}
		if err != nil {
			span.RecordError(err)
			if p.errors != nil {
				p.errors.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.String("error.type", fmt.Sprintf("%T", err)))...))
			}
		}
		span.End()
	}
}
