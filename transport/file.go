package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// FileClient appends one JSON envelope per line to a file, or to stdout
// when the path is "-".
type FileClient struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	host string
	now  func() time.Time
}

func NewFileClient(path string) (*FileClient, error) {
	var f *os.File
	if path == "-" {
		f = os.Stdout
	} else {
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, fmt.Errorf("open report file %s: %w", path, err)
		}
	}
	host, _ := os.Hostname()
	return &FileClient{file: f, buf: bufio.NewWriter(f), host: host, now: time.Now}, nil
}

func (c *FileClient) Send(_ context.Context, channel, topic string, payload any) error {
	data, err := jsonMarshal(Envelope{
		Channel: channel,
		Topic:   topic,
		SentAt:  c.now().UTC(),
		Host:    c.host,
		Payload: payload,
	})
	if err != nil {
		return &DeliveryError{Sink: "file", Channel: channel, Topic: topic, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.buf.Write(append(data, '\n')); err != nil {
		return &DeliveryError{Sink: "file", Channel: channel, Topic: topic, Err: err}
	}
	return nil
}

// Flush writes buffered envelopes of every channel.
func (c *FileClient) Flush(_ context.Context, channel string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.buf.Flush(); err != nil {
		return &DeliveryError{Sink: "file", Channel: channel, Err: err}
	}
	if c.file != os.Stdout {
		if err := c.file.Sync(); err != nil {
			return &DeliveryError{Sink: "file", Channel: channel, Err: err}
		}
	}
	return nil
}

func (c *FileClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.buf.Flush(); err != nil {
		return err
	}
	if c.file == os.Stdout {
		return nil
	}
	return c.file.Close()
}

// ReadEnvelopes decodes an NDJSON stream written by FileClient.
func ReadEnvelopes(r io.Reader) ([]Envelope, error) {
	var out []Envelope
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 64<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var env Envelope
		if err := jsonUnmarshal(line, &env); err != nil {
			return out, err
		}
		out = append(out, env)
	}
	return out, scanner.Err()
}
