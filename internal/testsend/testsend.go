// Package testsend delivers a single rendered sample of the campaign's
// primary template to an operator-supplied address.
package testsend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/outreach/internal/campaign"
	"github.com/foxzi/outreach/internal/email"
	"github.com/foxzi/outreach/internal/metrics"
	"github.com/foxzi/outreach/internal/ratelimit"
	"github.com/foxzi/outreach/internal/template"
)

// Precondition and state errors
var (
	ErrEmailRequired    = errors.New("test email address required")
	ErrTemplateRequired = errors.New("email template required")
	ErrInvalidEmail     = errors.New("invalid test email address")
	ErrBusy             = errors.New("test email already in progress")
	ErrRateLimited      = errors.New("test email rate limit exceeded")
)

// Notices shown to the user when a precondition fails
const (
	NoticeEmailRequired    = "Please enter a test email address"
	NoticeTemplateRequired = "Please create an email template first"
	NoticeInvalidEmail     = "Please enter a valid email address"
)

// Notice returns the user-facing text for a precondition error
func Notice(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrEmailRequired):
		return NoticeEmailRequired, true
	case errors.Is(err, ErrTemplateRequired):
		return NoticeTemplateRequired, true
	case errors.Is(err, ErrInvalidEmail):
		return NoticeInvalidEmail, true
	}
	return "", false
}

const (
	DefaultDelay         = 2 * time.Second
	DefaultPreviewLength = 200
	DefaultSubject       = "Test email"
)

// RateLimitError reports which limit denied the send
type RateLimitError struct {
	DeniedBy   ratelimit.Level
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: %s limit, retry after %s", ErrRateLimited, e.DeniedBy, e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// Request is the sample recipient used to fill placeholders
type Request struct {
	Email       string `json:"email"`
	CompanyName string `json:"company_name"`
	CompanyInfo string `json:"company_info"`
	ContactName string `json:"contact_name"`
	Website     string `json:"website"`
}

// DefaultRequest returns the sample recipient with no address set
func DefaultRequest() Request {
	return Request{
		CompanyName: "Example Corp",
		CompanyInfo: "A leading software company specializing in innovative solutions",
		ContactName: "John Smith",
		Website:     "https://example-corp.com",
	}
}

// Result describes a delivered test email
type Result struct {
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Preview   string    `json:"preview"`
	Mode      string    `json:"mode"`
	SentAt    time.Time `json:"sent_at"`
}

// Deliverer hands a built message to its destination
type Deliverer interface {
	Send(ctx context.Context, msg *email.Message) error
	Mode() string
}

// Limiter is the subset of ratelimit.Limiter used here
type Limiter interface {
	Allow(ctx context.Context, req *ratelimit.Request) (*ratelimit.Result, error)
}

// Options configures a Service
type Options struct {
	From          string
	Subject       string
	Delay         time.Duration
	PreviewLength int
}

// Service sends one test email at a time
type Service struct {
	deliverer Deliverer
	limiter   Limiter
	opts      Options
	logger    *slog.Logger
	busy      atomic.Bool
}

// NewService creates a test email service. limiter may be nil.
func NewService(deliverer Deliverer, limiter Limiter, opts Options, logger *slog.Logger) (*Service, error) {
	if deliverer == nil {
		return nil, fmt.Errorf("deliverer is required")
	}
	from, err := email.ParseAddress(opts.From)
	if err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	opts.From = from
	if opts.Subject == "" {
		opts.Subject = DefaultSubject
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if opts.PreviewLength <= 0 {
		opts.PreviewLength = DefaultPreviewLength
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		deliverer: deliverer,
		limiter:   limiter,
		opts:      opts,
		logger:    logger,
	}, nil
}

// Mode returns the delivery mode of the underlying deliverer
func (s *Service) Mode() string {
	return s.deliverer.Mode()
}

// Busy reports whether a send is in progress
func (s *Service) Busy() bool {
	return s.busy.Load()
}

// Send renders the primary template of cfg for req and delivers it. Once
// the preconditions pass the send is not cancelled by ctx.
func (s *Service) Send(ctx context.Context, cfg campaign.Config, req Request) (*Result, error) {
	recipient := strings.TrimSpace(req.Email)
	if recipient == "" {
		return nil, ErrEmailRequired
	}
	primary, ok := cfg.Primary()
	if !ok || strings.TrimSpace(primary.Content) == "" {
		return nil, ErrTemplateRequired
	}
	addr, err := email.ParseAddress(recipient)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEmail, err)
	}

	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer s.busy.Store(false)

	ctx = context.WithoutCancel(ctx)
	mode := s.deliverer.Mode()

	if s.limiter != nil {
		res, err := s.limiter.Allow(ctx, &ratelimit.Request{Recipient: addr})
		if err != nil {
			return nil, fmt.Errorf("failed to check rate limit: %w", err)
		}
		if !res.Allowed {
			metrics.IncRateLimitExceeded(string(res.DeniedBy))
			metrics.IncTestEmails(mode, "rate_limited")
			s.logger.Info("test email rate limited",
				"recipient", addr,
				"level", res.DeniedBy,
				"retry_after", res.RetryAfter)
			return nil, &RateLimitError{DeniedBy: res.DeniedBy, RetryAfter: res.RetryAfter}
		}
	}

	if s.opts.Delay > 0 {
		time.Sleep(s.opts.Delay)
	}

	body := template.RenderValues(primary.Content, template.Values{
		CompanyName: req.CompanyName,
		CompanyInfo: req.CompanyInfo,
		ContactName: req.ContactName,
		Website:     req.Website,
		Industry:    cfg.Industry,
		Location:    template.LocationFor(cfg.City, cfg.Country),
	})

	msg := &email.Message{
		ID:        uuid.New().String(),
		From:      s.opts.From,
		To:        []string{addr},
		Subject:   s.opts.Subject,
		Body:      body,
		CreatedAt: time.Now(),
	}
	if err := email.Build(msg); err != nil {
		metrics.IncTestEmails(mode, "failed")
		return nil, fmt.Errorf("failed to build message: %w", err)
	}

	if err := s.deliverer.Send(ctx, msg); err != nil {
		metrics.IncTestEmails(mode, "failed")
		s.logger.Warn("test email failed", "id", msg.ID, "recipient", addr, "mode", mode, "error", err)
		return nil, fmt.Errorf("failed to deliver test email: %w", err)
	}

	metrics.IncTestEmails(mode, "sent")
	s.logger.Info("test email sent", "id", msg.ID, "recipient", addr, "mode", mode, "size", len(msg.Data))

	return &Result{
		ID:        msg.ID,
		Recipient: addr,
		Subject:   msg.Subject,
		Body:      body,
		Preview:   template.Truncate(body, s.opts.PreviewLength),
		Mode:      mode,
		SentAt:    msg.CreatedAt,
	}, nil
}
