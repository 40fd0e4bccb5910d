package verify

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/foxzi/outreach/internal/campaign"
)

// Default check names
const (
	CheckCompaniesFound    = "Companies Found"
	CheckCompaniesLocation = "Companies Within Location"
	CheckEmailsFound       = "Email Addresses Found"
	CheckEmailsWritten     = "Emails Written"
)

// ErrCheckFailed is returned by a simulated check that rolls a failure
var ErrCheckFailed = errors.New("check failed")

// Rand is the random source used by simulated checks
type Rand interface {
	Float64() float64
}

// LockedRand is a Rand safe for concurrent use
type LockedRand struct {
	mu  sync.Mutex
	src *rand.Rand
}

// NewLockedRand seeds a LockedRand
func NewLockedRand(seed int64) *LockedRand {
	return &LockedRand{src: rand.New(rand.NewSource(seed))}
}

// Float64 returns a number in [0.0, 1.0)
func (r *LockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.Float64()
}

// SimulatedCheck advances progress by 10 every StepDelay and then succeeds
// with probability SuccessRate.
type SimulatedCheck struct {
	CheckName   string
	Message     func(cfg campaign.Config) string
	StepDelay   time.Duration
	SuccessRate float64
	Rand        Rand
}

// Name returns the check name
func (c *SimulatedCheck) Name() string {
	return c.CheckName
}

// Run reports progress from 0 to 100 and rolls the outcome
func (c *SimulatedCheck) Run(ctx context.Context, cfg campaign.Config, progress func(int)) (string, error) {
	for p := 0; p <= 100; p += 10 {
		progress(p)
		if p == 100 {
			break
		}
		if !sleep(ctx, c.StepDelay) {
			return "", ctx.Err()
		}
	}

	if c.Rand.Float64() >= c.SuccessRate {
		return "", ErrCheckFailed
	}
	return c.Message(cfg), nil
}

// SimulationOptions configures DefaultChecks
type SimulationOptions struct {
	StepDelay   time.Duration
	SuccessRate float64
	Rand        Rand
}

// DefaultChecks returns the four standard pre-launch checks
func DefaultChecks(opts SimulationOptions) []Check {
	if opts.Rand == nil {
		opts.Rand = NewLockedRand(time.Now().UnixNano())
	}

	fixed := func(msg string) func(campaign.Config) string {
		return func(campaign.Config) string { return msg }
	}

	specs := []struct {
		name string
		msg  func(campaign.Config) string
	}{
		{CheckCompaniesFound, fixed("1,247 companies found")},
		{CheckCompaniesLocation, fixed("823 companies in target location")},
		{CheckEmailsFound, fixed("1,891 email addresses found")},
		{CheckEmailsWritten, func(cfg campaign.Config) string {
			return fmt.Sprintf("%d email templates ready", len(campaign.ActiveTemplates(cfg)))
		}},
	}

	checks := make([]Check, 0, len(specs))
	for _, s := range specs {
		checks = append(checks, &SimulatedCheck{
			CheckName:   s.name,
			Message:     s.msg,
			StepDelay:   opts.StepDelay,
			SuccessRate: opts.SuccessRate,
			Rand:        opts.Rand,
		})
	}
	return checks
}
