// Package telemetry ships logs and fetch spans to an OTLP/HTTP collector.
package telemetry

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/agentuity/go-marketdata/logger"
	"github.com/cockroachdb/errors"
	"github.com/xhit/go-str2duration/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"
)

const exportTimeout = 10 * time.Second

func GenerateOTLPBearerToken(sharedSecret string, token string) (string, error) {
	hash := sha256.New()
	if _, err := hash.Write([]byte(sharedSecret + "." + token)); err != nil {
		return "", errors.Wrap(err, "error hashing token")
	}
	secret := hash.Sum(nil)
	tok2 := base64.StdEncoding.EncodeToString(secret)
	return token + "." + tok2, nil
}

// GenerateOTLPBearerTokenWithExpiration returns a token of the form
// <lifetime>.<issued unix>.<signature>.
func GenerateOTLPBearerTokenWithExpiration(sharedSecret string, expiration time.Time) (string, error) {
	lifetime := time.Until(expiration).Round(time.Minute)
	if lifetime <= 0 {
		return "", errors.New("expiration time is in the past")
	}
	token := str2duration.String(lifetime) + "." + strconv.FormatInt(time.Now().Unix(), 10)
	return GenerateOTLPBearerToken(sharedSecret, token)
}

type ShutdownFunc func()

// Options configures New.
type Options struct {
	ServiceName string
	// Endpoint is the collector base URL; /v1/logs and /v1/traces are appended.
	Endpoint string
	// SharedSecret signs a bearer token valid for TokenLifetime. Empty sends no auth.
	SharedSecret  string
	TokenLifetime time.Duration
}

// New installs a global tracer provider and returns a context, a logger that
// writes to both base (if not nil) and the collector, and a shutdown function
// that flushes both pipelines.
func New(ctx context.Context, opts Options, base logger.Logger) (context.Context, logger.Logger, ShutdownFunc, error) {
	// parse oltpURL
	oltpURL, err := url.Parse(opts.Endpoint)
	if err != nil || oltpURL.Scheme == "" || oltpURL.Host == "" {
		if err == nil {
			err = errors.Newf("missing scheme or host in %q", opts.Endpoint)
		}
		return nil, nil, nil, errors.Wrap(err, "error parsing oltpServerURL")
	}
	oltpURL.Path = "/v1/logs"
	logURL := oltpURL.String()
	oltpURL.Path = "/v1/traces"
	traceURL := oltpURL.String()
	insecure := oltpURL.Scheme == "http"

	res, err := resource.New(
		ctx,
		resource.WithFromEnv(),      // Discover and provide attributes from OTEL_RESOURCE_ATTRIBUTES and OTEL_SERVICE_NAME environment variables.
		resource.WithTelemetrySDK(), // Discover and provide information about the OpenTelemetry SDK used.
		resource.WithProcess(),      // Discover and provide process information.
		resource.WithOS(),           // Discover and provide OS information.
		resource.WithHost(),         // Discover and provide host information.
		resource.WithAttributes(semconv.ServiceName(opts.ServiceName)),
	)
	if errors.Is(err, resource.ErrPartialResource) || errors.Is(err, resource.ErrSchemaURLConflict) {
		if base != nil {
			base.Warn("partial telemetry resource: %s", err)
		}
	} else if err != nil {
		return nil, nil, nil, errors.Wrap(err, "error creating resource")
	}

	headers := make(map[string]string)
	if opts.SharedSecret != "" {
		lifetime := opts.TokenLifetime
		if lifetime <= 0 {
			lifetime = 24 * time.Hour
		}
		token, err := GenerateOTLPBearerTokenWithExpiration(opts.SharedSecret, time.Now().Add(lifetime))
		if err != nil {
			return nil, nil, nil, err
		}
		headers["Authorization"] = "Bearer " + token
	}

	logExporterOpts := []otlploghttp.Option{
		otlploghttp.WithEndpointURL(logURL),
		otlploghttp.WithHeaders(headers),
		otlploghttp.WithTimeout(exportTimeout),
		otlploghttp.WithCompression(otlploghttp.GzipCompression),
	}
	traceExporterOpts := []otlptracehttp.Option{
		otlptracehttp.WithEndpointURL(traceURL),
		otlptracehttp.WithHeaders(headers),
		otlptracehttp.WithTimeout(exportTimeout),
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
	}
	if insecure {
		logExporterOpts = append(logExporterOpts, otlploghttp.WithInsecure())
		traceExporterOpts = append(traceExporterOpts, otlptracehttp.WithInsecure())
	}

	logExporter, err := otlploghttp.New(ctx, logExporterOpts...)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "error creating log exporter")
	}
	traceExporter, err := otlptracehttp.New(ctx, traceExporterOpts...)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "error creating trace exporter")
	}

	logProvider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
	)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter),
	)
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	log := logger.NewOtelLogger(logProvider.Logger(opts.ServiceName), logger.LevelTrace)
	if base != nil {
		log = base.Stack(log)
	}

	return ctx, log, func() {
		ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
		defer cancel()
		if err := traceProvider.Shutdown(ctx); err != nil && base != nil {
			base.Warn("error flushing traces: %s", err)
		}
		if err := logProvider.Shutdown(ctx); err != nil && base != nil {
			base.Warn("error flushing logs: %s", err)
		}
	}, nil
}

// StartSpan starts a span and returns a logger tagged with its ids.
func StartSpan(ctx context.Context, log logger.Logger, tracer trace.Tracer, name string, opts ...trace.SpanStartOption) (context.Context, logger.Logger, trace.Span) {
	ctx, span := tracer.Start(ctx, name, opts...)
	sc := span.SpanContext()
	if sc.IsValid() {
		log = log.With(map[string]interface{}{
			"trace_id": sc.TraceID().String(),
			"span_id":  sc.SpanID().String(),
		})
	}
	return ctx, log.WithContext(ctx), span
}

// Describe renders the collector settings for status output.
func (o Options) Describe() string {
	auth := "none"
	if o.SharedSecret != "" {
		auth = "shared-secret"
	}
	return fmt.Sprintf("%s (service=%s, auth=%s)", o.Endpoint, o.ServiceName, auth)
}
