// Package nats wraps the JetStream connection used for event publishing.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Config controls the NATS connection.
type Config struct {
	URL  string
	Name string // connection name shown in monitoring
}

// Client is a JetStream publisher.
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// Connect dials NATS and opens a JetStream context.
func Connect(cfg Config) (*Client, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open JetStream context: %w", err)
	}

	return &Client{conn: conn, js: js}, nil
}

// Publish sends a message to a subject, honoring context cancellation.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := c.js.Publish(subject, data, nats.Context(ctx))
	return err
}

// Close drains the connection so buffered messages are flushed.
func (c *Client) Close() {
	if c.conn != nil {
		_ = c.conn.Drain()
	}
}
