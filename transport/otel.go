package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	otelLog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"

	"iocscan/logger"
	"iocscan/version"
)

// OtelConfig selects the OTLP/HTTP logs endpoint.
type OtelConfig struct {
	Endpoint    string
	Headers     map[string]string
	Timeout     time.Duration
	ServiceName string
}

// OtelClient emits one OTLP log record per send.
type OtelClient struct {
	provider *sdklog.LoggerProvider
	logger   otelLog.Logger
	timeout  time.Duration
	endpoint string
}

func NewOtelClient(cfg OtelConfig) (*OtelClient, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("otel endpoint must include scheme (http or https)")
	}

	opts := []otlploghttp.Option{otlploghttp.WithEndpointURL(endpoint)}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlploghttp.WithHeaders(cfg.Headers))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, otlploghttp.WithTimeout(cfg.Timeout))
	}

	exp, err := otlploghttp.New(context.Background(), opts...)
	if err != nil {
		return nil, err
	}

	service := cfg.ServiceName
	if service == "" {
		service = "iocscan"
	}
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(service),
		semconv.ServiceVersionKey.String(version.Version),
	)
	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		sdklog.WithResource(res),
	)
	return &OtelClient{
		provider: provider,
		logger:   provider.Logger("iocscan"),
		timeout:  cfg.Timeout,
		endpoint: endpoint,
	}, nil
}

func (o *OtelClient) Endpoint() string { return o.endpoint }

func (o *OtelClient) Send(ctx context.Context, channel, topic string, payload any) error {
	now := time.Now()
	var record otelLog.Record
	record.SetTimestamp(now)
	record.SetObservedTimestamp(now)
	record.SetEventName("iocscan." + topic)
	record.AddAttributes(
		otelLog.String("iocscan.channel", channel),
		otelLog.String("iocscan.topic", topic),
	)

	body := toLogValue(payload)
	if body.Kind() == otelLog.KindEmpty {
		// Structs go through JSON to become maps and slices.
		data, err := jsonMarshal(payload)
		if err != nil {
			return &DeliveryError{Sink: "otel", Channel: channel, Topic: topic, Err: err}
		}
		var decoded any
		if err := jsonUnmarshal(data, &decoded); err == nil {
			body = toLogValue(decoded)
		}
		if body.Kind() == otelLog.KindEmpty {
			body = otelLog.StringValue(string(data))
		}
	}
	record.SetBody(body)
	o.logger.Emit(ctx, record)
	return nil
}

func (o *OtelClient) Flush(ctx context.Context, channel string) error {
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()
	if err := o.provider.ForceFlush(ctx); err != nil {
		return &DeliveryError{Sink: "otel", Channel: channel, Err: err}
	}
	return nil
}

func (o *OtelClient) Close() error {
	ctx, cancel := o.withTimeout(context.Background())
	defer cancel()
	if err := o.provider.Shutdown(ctx); err != nil {
		logger.Debugf("OTEL shutdown failed: %v", err)
		return err
	}
	return nil
}

func (o *OtelClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := o.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func toLogValue(value any) otelLog.Value {
	switch v := value.(type) {
	case nil:
		return otelLog.Value{}
	case string:
		return otelLog.StringValue(v)
	case []byte:
		return otelLog.BytesValue(v)
	case bool:
		return otelLog.BoolValue(v)
	case int:
		return otelLog.IntValue(v)
	case int64:
		return otelLog.Int64Value(v)
	case float64:
		return otelLog.Float64Value(v)
	case float32:
		return otelLog.Float64Value(float64(v))
	case map[string]any:
		kvs := make([]otelLog.KeyValue, 0, len(v))
		for key, item := range v {
			kvs = append(kvs, otelLog.KeyValue{Key: key, Value: toLogValue(item)})
		}
		return otelLog.MapValue(kvs...)
	case map[string]string:
		kvs := make([]otelLog.KeyValue, 0, len(v))
		for k, val := range v {
			kvs = append(kvs, otelLog.String(k, val))
		}
		return otelLog.MapValue(kvs...)
	case []string:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, otelLog.StringValue(item))
		}
		return otelLog.SliceValue(values...)
	case []any:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, toLogValue(item))
		}
		return otelLog.SliceValue(values...)
	default:
		return otelLog.Value{}
	}
}
