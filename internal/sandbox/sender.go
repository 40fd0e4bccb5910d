package sandbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/foxzi/outreach/internal/email"
)

// Delivery modes
const (
	ModeSandbox = "sandbox" // capture only
	ModeRelay   = "relay"   // SMTP relay only
	ModeCopy    = "copy"    // relay and capture
)

// ValidMode reports whether mode is a known delivery mode
func ValidMode(mode string) bool {
	switch mode {
	case ModeSandbox, ModeRelay, ModeCopy:
		return true
	}
	return false
}

// Relay is the interface for the real SMTP sender
type Relay interface {
	Send(ctx context.Context, msg *email.Message) error
}

var simulatedErrors = []string{
	"550 User not found",
	"451 Temporary failure",
	"452 Insufficient storage",
	"421 Service not available",
}

// Sender delivers test emails according to the configured mode
type Sender struct {
	mode    string
	relay   Relay
	storage *Storage
	logger  *slog.Logger

	mu               sync.Mutex
	rnd              *rand.Rand
	simulateErrors   bool
	errorProbability float64
}

// NewSender creates a new sender. relay may be nil in sandbox mode.
func NewSender(mode string, relay Relay, storage *Storage, logger *slog.Logger) (*Sender, error) {
	if mode == "" {
		mode = ModeSandbox
	}
	if !ValidMode(mode) {
		return nil, fmt.Errorf("unknown delivery mode %q", mode)
	}
	if mode != ModeSandbox && relay == nil {
		return nil, fmt.Errorf("delivery mode %q requires an SMTP relay", mode)
	}
	if mode != ModeRelay && storage == nil {
		return nil, fmt.Errorf("delivery mode %q requires sandbox storage", mode)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sender{
		mode:             mode,
		relay:            relay,
		storage:          storage,
		logger:           logger,
		rnd:              rand.New(rand.NewSource(time.Now().UnixNano())),
		errorProbability: 0.1,
	}, nil
}

// Mode returns the delivery mode
func (s *Sender) Mode() string {
	return s.mode
}

// SetErrorSimulation enables or disables simulated delivery errors for
// captured messages
func (s *Sender) SetErrorSimulation(enabled bool, probability float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.simulateErrors = enabled
	if probability > 0 && probability <= 1 {
		s.errorProbability = probability
	}
}

// SetRand replaces the random source used for error simulation
func (s *Sender) SetRand(r *rand.Rand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rnd = r
}

// Send delivers msg according to the mode
func (s *Sender) Send(ctx context.Context, msg *email.Message) error {
	switch s.mode {
	case ModeRelay:
		return s.relay.Send(ctx, msg)
	case ModeCopy:
		return s.handleCopy(ctx, msg)
	default:
		return s.handleSandbox(ctx, msg)
	}
}

func (s *Sender) handleSandbox(ctx context.Context, msg *email.Message) error {
	captured := s.capture(msg, ModeSandbox)

	if errMsg := s.simulatedError(); errMsg != "" {
		captured.SimulatedErr = errMsg
		if err := s.storage.Save(ctx, captured); err != nil {
			s.logger.Error("failed to save message", "id", msg.ID, "error", err)
		}
		s.logger.Info("simulated delivery error", "id", msg.ID, "error", errMsg)
		return &SimulatedError{
			Message:   errMsg,
			Temporary: strings.HasPrefix(errMsg, "4"),
		}
	}

	if err := s.storage.Save(ctx, captured); err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	s.logger.Info("message captured",
		"id", msg.ID,
		"from", msg.From,
		"to", msg.To,
	)
	return nil
}

func (s *Sender) handleCopy(ctx context.Context, msg *email.Message) error {
	if err := s.relay.Send(ctx, msg); err != nil {
		return err
	}

	if err := s.storage.Save(ctx, s.capture(msg, ModeCopy)); err != nil {
		// The relay already accepted the message.
		s.logger.Warn("failed to save copy", "id", msg.ID, "error", err)
	}
	return nil
}

func (s *Sender) capture(msg *email.Message, mode string) *Message {
	domain := ""
	if len(msg.To) > 0 {
		domain = email.ExtractDomain(msg.To[0])
	}
	return &Message{
		ID:         msg.ID,
		From:       msg.From,
		To:         append([]string(nil), msg.To...),
		Subject:    msg.Subject,
		Body:       msg.Body,
		Data:       msg.Data,
		Domain:     domain,
		Mode:       mode,
		CapturedAt: time.Now(),
	}
}

func (s *Sender) simulatedError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.simulateErrors || s.rnd.Float64() >= s.errorProbability {
		return ""
	}
	return simulatedErrors[s.rnd.Intn(len(simulatedErrors))]
}

// SimulatedError represents a simulated delivery error
type SimulatedError struct {
	Message   string
	Temporary bool
}

func (e *SimulatedError) Error() string {
	return e.Message
}
