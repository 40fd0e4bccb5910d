package testsend

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/outreach/internal/campaign"
	"github.com/foxzi/outreach/internal/email"
	"github.com/foxzi/outreach/internal/ratelimit"
)

type fakeDeliverer struct {
	mu      sync.Mutex
	sent    []*email.Message
	err     error
	block   chan struct{}
	started chan struct{}
}

func (f *fakeDeliverer) Mode() string { return "sandbox" }

func (f *fakeDeliverer) Send(ctx context.Context, msg *email.Message) error {
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

func newTestService(t *testing.T, d Deliverer, l Limiter) *Service {
	t.Helper()
	s, err := NewService(d, l, Options{From: "campaigns@example.com"}, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	s.opts.Delay = 0
	return s
}

func testConfig(content string) campaign.Config {
	cfg := campaign.Default()
	cfg.Industry = "SaaS"
	cfg.Country = "gb"
	cfg.City = "London"
	cfg.Templates[0].Content = content
	return cfg
}

func TestSendRendersPrimaryTemplate(t *testing.T) {
	d := &fakeDeliverer{}
	s := newTestService(t, d, nil)

	req := DefaultRequest()
	req.Email = " tester@example.org "

	cfg := testConfig("Hi [Contact Name] at [company name] ([website]), [industry] in [location]")
	cfg.ABTestingEnabled = true
	cfg.Templates = append(cfg.Templates, campaign.Template{ID: "2", Content: "variant"})

	res, err := s.Send(context.Background(), cfg, req)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	want := "Hi John Smith at Example Corp (https://example-corp.com), SaaS in London, United Kingdom"
	if res.Body != want {
		t.Errorf("Body = %q, want %q", res.Body, want)
	}
	if res.Preview != want {
		t.Errorf("Preview = %q", res.Preview)
	}
	if res.Recipient != "tester@example.org" || res.Mode != "sandbox" || res.ID == "" {
		t.Errorf("unexpected result %+v", res)
	}

	if len(d.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(d.sent))
	}
	msg := d.sent[0]
	if msg.ID != res.ID || len(msg.Data) == 0 {
		t.Errorf("message not built: %+v", msg)
	}
	if got := email.ExtractSubject(msg.Data); got != DefaultSubject {
		t.Errorf("subject = %q", got)
	}
}

func TestSendPreviewTruncated(t *testing.T) {
	s := newTestService(t, &fakeDeliverer{}, nil)

	req := DefaultRequest()
	req.Email = "tester@example.org"
	res, err := s.Send(context.Background(), testConfig(strings.Repeat("a", 250)), req)
	if err != nil {
		t.Fatal(err)
	}
	if res.Preview != strings.Repeat("a", 200)+"..." {
		t.Errorf("Preview length = %d", len(res.Preview))
	}
	if len(res.Body) != 250 {
		t.Errorf("Body length = %d", len(res.Body))
	}
}

func TestSendPreconditions(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		cfg     campaign.Config
		wantErr error
	}{
		{"missing email", "", testConfig("hello"), ErrEmailRequired},
		{"blank email", "   ", testConfig("hello"), ErrEmailRequired},
		{"empty template", "a@example.com", testConfig("  \n"), ErrTemplateRequired},
		{"no templates", "a@example.com", campaign.Config{}, ErrTemplateRequired},
		{"email checked first", "", campaign.Config{}, ErrEmailRequired},
		{"invalid email", "not-an-address", testConfig("hello"), ErrInvalidEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDeliverer{}
			s := newTestService(t, d, nil)

			req := DefaultRequest()
			req.Email = tt.email
			_, err := s.Send(context.Background(), tt.cfg, req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Send() error = %v, want %v", err, tt.wantErr)
			}
			if len(d.sent) != 0 {
				t.Error("nothing should be delivered")
			}
		})
	}
}

func TestNotice(t *testing.T) {
	tests := []struct {
		err    error
		want   string
		wantOK bool
	}{
		{ErrEmailRequired, NoticeEmailRequired, true},
		{ErrTemplateRequired, NoticeTemplateRequired, true},
		{fmt.Errorf("%w: missing @", ErrInvalidEmail), NoticeInvalidEmail, true},
		{ErrBusy, "", false},
		{nil, "", false},
	}

	for _, tt := range tests {
		got, ok := Notice(tt.err)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Notice(%v) = %q, %v, want %q, %v", tt.err, got, ok, tt.want, tt.wantOK)
		}
	}

	for _, err := range []error{ErrEmailRequired, ErrTemplateRequired, ErrInvalidEmail} {
		if msg := err.Error(); msg != strings.ToLower(msg) {
			t.Errorf("error string %q is not lower case", msg)
		}
	}
}

func TestSendBusy(t *testing.T) {
	d := &fakeDeliverer{block: make(chan struct{}), started: make(chan struct{})}
	s := newTestService(t, d, nil)

	req := DefaultRequest()
	req.Email = "tester@example.org"

	errc := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background(), testConfig("hello"), req)
		errc <- err
	}()

	<-d.started
	if !s.Busy() {
		t.Error("Busy() = false during send")
	}
	if _, err := s.Send(context.Background(), testConfig("hello"), req); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent Send() error = %v, want ErrBusy", err)
	}

	close(d.block)
	if err := <-errc; err != nil {
		t.Fatalf("first Send() error = %v", err)
	}
	if s.Busy() {
		t.Error("Busy() = true after send")
	}
}

func TestSendDeliveryFailure(t *testing.T) {
	deliveryErr := errors.New("relay down")
	s := newTestService(t, &fakeDeliverer{err: deliveryErr}, nil)

	req := DefaultRequest()
	req.Email = "tester@example.org"
	if _, err := s.Send(context.Background(), testConfig("hello"), req); !errors.Is(err, deliveryErr) {
		t.Errorf("Send() error = %v, want wrapped delivery error", err)
	}
}

func TestSendRateLimited(t *testing.T) {
	db, err := bolt.Open(filepath.Join(t.TempDir(), "test.db"), 0600, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	limiter, err := ratelimit.NewLimiter(db, &ratelimit.Config{
		Recipient: &ratelimit.LimitConfig{MessagesPerHour: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { limiter.Stop() })

	d := &fakeDeliverer{}
	s := newTestService(t, d, limiter)

	req := DefaultRequest()
	req.Email = "Tester@Example.org"
	if _, err := s.Send(context.Background(), testConfig("hello"), req); err != nil {
		t.Fatalf("first Send() error = %v", err)
	}

	req.Email = "tester@example.org"
	_, err = s.Send(context.Background(), testConfig("hello"), req)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("second Send() error = %v, want ErrRateLimited", err)
	}
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatal("expected *RateLimitError")
	}
	if rle.DeniedBy != ratelimit.LevelRecipient || rle.RetryAfter <= 0 || rle.RetryAfter > time.Hour {
		t.Errorf("unexpected %+v", rle)
	}
	if len(d.sent) != 1 {
		t.Errorf("sent %d messages, want 1", len(d.sent))
	}
}

func TestNewServiceValidation(t *testing.T) {
	if _, err := NewService(nil, nil, Options{From: "a@example.com"}, nil); err == nil {
		t.Error("expected error without deliverer")
	}
	if _, err := NewService(&fakeDeliverer{}, nil, Options{From: "nobody"}, nil); err == nil {
		t.Error("expected error for invalid from")
	}

	s, err := NewService(&fakeDeliverer{}, nil, Options{From: "Campaigns <campaigns@example.com>"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if s.opts.From != "campaigns@example.com" || s.opts.PreviewLength != 200 || s.opts.Subject != DefaultSubject {
		t.Errorf("defaults = %+v", s.opts)
	}
	if s.opts.Delay != 0 {
		t.Errorf("Delay = %v, want 0 when unset", s.opts.Delay)
	}
}
