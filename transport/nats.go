package transport

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/propagation"
)

const (
	DefaultNATSPrefix = "iocscan"
	natsFlushTimeout  = 10 * time.Second
)

var propagator = propagation.TraceContext{}

// NATSClient publishes envelopes to <prefix>.<channel>.<topic>.
type NATSClient struct {
	nc     *nats.Conn
	prefix string
	host   string
}

func NewNATSClient(url, prefix string) (*NATSClient, error) {
	nc, err := nats.Connect(url,
		nats.Name("iocscan"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, &DeliveryError{Sink: "nats", Channel: url, Err: err}
	}
	if prefix == "" {
		prefix = DefaultNATSPrefix
	}
	host, _ := os.Hostname()
	return &NATSClient{nc: nc, prefix: prefix, host: host}, nil
}

// Subject builds the subject a payload is published on. Dots inside the
// channel or topic are replaced so they do not add subject tokens.
func Subject(prefix, channel, topic string) string {
	clean := func(s string) string {
		s = strings.ReplaceAll(s, ".", "_")
		return strings.Map(func(r rune) rune {
			if r == ' ' || r == '*' || r == '>' {
				return '_'
			}
			return r
		}, s)
	}
	return prefix + "." + clean(channel) + "." + clean(topic)
}

func (c *NATSClient) Send(ctx context.Context, channel, topic string, payload any) error {
	data, err := jsonMarshal(Envelope{
		Channel: channel,
		Topic:   topic,
		SentAt:  time.Now().UTC(),
		Host:    c.host,
		Payload: payload,
	})
	if err != nil {
		return &DeliveryError{Sink: "nats", Channel: channel, Topic: topic, Err: err}
	}
	hdr := nats.Header{}
	propagator.Inject(ctx, propagation.HeaderCarrier(hdr))
	msg := &nats.Msg{Subject: Subject(c.prefix, channel, topic), Data: data, Header: hdr}
	if err := c.nc.PublishMsg(msg); err != nil {
		return &DeliveryError{Sink: "nats", Channel: channel, Topic: topic, Err: err}
	}
	return nil
}

func (c *NATSClient) Flush(ctx context.Context, channel string) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, natsFlushTimeout)
		defer cancel()
	}
	if err := c.nc.FlushWithContext(ctx); err != nil {
		return &DeliveryError{Sink: "nats", Channel: channel, Err: err}
	}
	return nil
}

func (c *NATSClient) Close() error {
	if c.nc == nil {
		return nil
	}
	err := c.nc.Drain()
	c.nc = nil
	return err
}
