// Package bus wraps the NATS connection used for progress and completion
// events. All publishers are nil-safe: a disabled bus is a no-op.
package bus

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Options mirror config.BusConfig without importing it.
type Options struct {
	Servers        []string
	Username       string
	Password       string
	Token          string
	TLSInsecure    bool
	ConnectTimeout time.Duration
}

// Client wraps a NATS connection with minimal helpers.
type Client struct {
	conn *nats.Conn
	log  *slog.Logger
}

func Connect(ctx context.Context, opts Options, log *slog.Logger) (*Client, error) {
	if len(opts.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}

	natsOpts := []nats.Option{
		nats.Name("podforge"),
		nats.Timeout(opts.ConnectTimeout),
	}
	if opts.Username != "" || opts.Password != "" {
		natsOpts = append(natsOpts, nats.UserInfo(opts.Username, opts.Password))
	}
	if opts.Token != "" {
		natsOpts = append(natsOpts, nats.Token(opts.Token))
	}
	if opts.TLSInsecure {
		natsOpts = append(natsOpts, nats.Secure(&tls.Config{InsecureSkipVerify: true}))
	}

	url := strings.Join(opts.Servers, ",")
	conn, err := nats.Connect(url, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info("connected to NATS", slog.String("servers", url))

	return &Client{conn: conn, log: log}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	c.log.Info("closing NATS connection")
	c.conn.Drain()
	c.conn.Close()
}

func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

// PublishJSON marshals v and publishes it. Publish failures are logged and
// swallowed; event delivery never blocks or fails the triggering operation.
func (c *Client) PublishJSON(subject string, v any) {
	if c == nil || c.conn == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("failed to marshal bus event",
			slog.String("subject", subject), slogError(err))
		return
	}
	if err := c.conn.Publish(subject, data); err != nil {
		c.log.Warn("failed to publish bus event",
			slog.String("subject", subject), slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
