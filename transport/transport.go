// Package transport delivers reports and state to the collection side.
// Every payload travels in an Envelope naming its channel and topic.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Client sends payloads on named channels.
type Client interface {
	Send(ctx context.Context, channel, topic string, payload any) error
	Flush(ctx context.Context, channel string) error
	Close() error
}

// Envelope is the wire form of one send.
type Envelope struct {
	Channel string    `json:"channel"`
	Topic   string    `json:"topic"`
	SentAt  time.Time `json:"sent_at"`
	Host    string    `json:"host,omitempty"`
	Payload any       `json:"payload"`
}

// DeliveryError reports a payload that did not reach its channel.
type DeliveryError struct {
	Sink    string
	Channel string
	Topic   string
	Err     error
}

func (e *DeliveryError) Error() string {
	if e.Topic == "" {
		return fmt.Sprintf("%s: deliver to %s: %v", e.Sink, e.Channel, e.Err)
	}
	return fmt.Sprintf("%s: deliver %s to %s: %v", e.Sink, e.Topic, e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Multi fans every call out to all clients and joins their errors.
type Multi []Client

func (m Multi) Send(ctx context.Context, channel, topic string, payload any) error {
	var errs []error
	for _, c := range m {
		if err := c.Send(ctx, channel, topic, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Flush(ctx context.Context, channel string) error {
	var errs []error
	for _, c := range m {
		if err := c.Flush(ctx, channel); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, c := range m {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
