// Package smtp relays test emails through an authenticated SMTP submission
// server.
package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/foxzi/outreach/internal/email"
)

// Connection security
const (
	SecurityNone     = "none"
	SecurityStartTLS = "starttls"
	SecurityTLS      = "tls"
)

// Options configures the relay connection
type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	Security string
	HeloName string
	Timeout  time.Duration

	// TLSConfig overrides the default TLS settings (tests use it to trust
	// a self-signed certificate).
	TLSConfig *tls.Config
}

// DeliveryError represents a delivery error with type information
type DeliveryError struct {
	Temporary bool
	Message   string
}

func (e *DeliveryError) Error() string {
	return e.Message
}

// Client sends messages to a single relay host
type Client struct {
	opts   Options
	logger *slog.Logger
}

// NewClient creates a new relay client
func NewClient(opts Options, logger *slog.Logger) (*Client, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("relay host is required")
	}
	if opts.Security == "" {
		opts.Security = SecurityStartTLS
	}
	switch opts.Security {
	case SecurityNone, SecurityStartTLS, SecurityTLS:
	default:
		return nil, fmt.Errorf("unknown relay security %q", opts.Security)
	}
	if opts.Port == 0 {
		opts.Port = defaultPort(opts.Security)
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.HeloName == "" {
		opts.HeloName = "localhost"
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{opts: opts, logger: logger}, nil
}

func defaultPort(security string) int {
	switch security {
	case SecurityTLS:
		return 465
	case SecurityNone:
		return 25
	default:
		return 587
	}
}

// Addr returns the relay host:port
func (c *Client) Addr() string {
	return net.JoinHostPort(c.opts.Host, strconv.Itoa(c.opts.Port))
}

// Send delivers msg.Data to all recipients in a single transaction
func (c *Client) Send(ctx context.Context, msg *email.Message) error {
	if len(msg.To) == 0 {
		return &DeliveryError{Temporary: false, Message: "no valid recipients"}
	}
	if len(msg.Data) == 0 {
		return &DeliveryError{Temporary: false, Message: "empty message data"}
	}

	client, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if c.opts.Username != "" {
		if ok, _ := client.Extension("AUTH"); !ok {
			return &DeliveryError{
				Temporary: false,
				Message:   fmt.Sprintf("relay %s does not support AUTH", c.Addr()),
			}
		}
		auth := sasl.NewPlainClient("", c.opts.Username, c.opts.Password)
		if err := client.Auth(auth); err != nil {
			return c.categorizeError(err, "AUTH")
		}
	}

	if err := client.Mail(msg.From, nil); err != nil {
		return c.categorizeError(err, "MAIL FROM")
	}

	for _, recipient := range msg.To {
		if err := client.Rcpt(recipient, nil); err != nil {
			return c.categorizeError(err, fmt.Sprintf("RCPT TO %s", recipient))
		}
	}

	wc, err := client.Data()
	if err != nil {
		return c.categorizeError(err, "DATA")
	}

	if _, err := bytes.NewReader(msg.Data).WriteTo(wc); err != nil {
		wc.Close()
		return &DeliveryError{
			Temporary: true,
			Message:   fmt.Sprintf("failed to write message data: %v", err),
		}
	}

	if err := wc.Close(); err != nil {
		return c.categorizeError(err, "DATA close")
	}

	client.Quit()

	c.logger.Info("message relayed",
		"relay", c.Addr(),
		"id", msg.ID,
		"from", msg.From,
		"to", msg.To,
	)

	return nil
}

func (c *Client) dial(ctx context.Context) (*smtp.Client, error) {
	addr := c.Addr()
	dialer := &net.Dialer{Timeout: c.opts.Timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &DeliveryError{
			Temporary: true,
			Message:   fmt.Sprintf("connection failed to %s: %v", addr, err),
		}
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(c.opts.Timeout))
	}

	var client *smtp.Client
	if c.opts.Security == SecurityTLS {
		client = smtp.NewClient(tls.Client(conn, c.tlsConfig()))
	} else {
		client = smtp.NewClient(conn)
	}

	if err := client.Hello(c.opts.HeloName); err != nil {
		client.Close()
		return nil, c.categorizeError(err, "HELO")
	}

	if c.opts.Security == SecurityStartTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			client.Close()
			return nil, &DeliveryError{
				Temporary: false,
				Message:   fmt.Sprintf("relay %s does not support STARTTLS", addr),
			}
		}
		if err := client.StartTLS(c.tlsConfig()); err != nil {
			client.Close()
			return nil, c.categorizeError(err, "STARTTLS")
		}
	}

	return client, nil
}

func (c *Client) tlsConfig() *tls.Config {
	if c.opts.TLSConfig != nil {
		cfg := c.opts.TLSConfig.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = c.opts.Host
		}
		return cfg
	}
	return &tls.Config{
		ServerName: c.opts.Host,
		MinVersion: tls.VersionTLS12,
	}
}

// smtpCodePattern matches SMTP response codes at word boundaries
var smtpCodePattern = regexp.MustCompile(`\b(4\d{2}|5\d{2})\b`)

// categorizeError determines if an SMTP error is temporary or permanent
func (c *Client) categorizeError(err error, stage string) *DeliveryError {
	msg := fmt.Sprintf("%s failed: %v", stage, err)

	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		return &DeliveryError{
			Temporary: smtpErr.Code < 500,
			Message:   msg,
		}
	}

	matches := smtpCodePattern.FindStringSubmatch(err.Error())
	if len(matches) > 1 && strings.HasPrefix(matches[1], "5") {
		return &DeliveryError{Temporary: false, Message: msg}
	}

	// Assume temporary by default
	return &DeliveryError{Temporary: true, Message: msg}
}

// IsTemporaryError checks if the error is temporary
func IsTemporaryError(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Temporary
	}
	return true
}
