// Package ratelimit caps how many test emails are sent per hour and per day,
// globally and per recipient.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/outreach/internal/email"
)

var bucketRateLimits = []byte("rate_limits")

// Level represents the level of rate limiting
type Level string

const (
	LevelGlobal          Level = "global"
	LevelRecipient       Level = "recipient"
	LevelRecipientDomain Level = "recipient_domain"
)

// Config contains rate limit configuration
type Config struct {
	Global          *LimitConfig `yaml:"global,omitempty"`
	Recipient       *LimitConfig `yaml:"recipient,omitempty"`
	RecipientDomain *LimitConfig `yaml:"recipient_domain,omitempty"`

	// Persistence settings
	FlushInterval time.Duration `yaml:"flush_interval,omitempty"`
}

// LimitConfig contains rate limit values. Zero means unlimited.
type LimitConfig struct {
	MessagesPerHour int `yaml:"messages_per_hour" json:"messages_per_hour"`
	MessagesPerDay  int `yaml:"messages_per_day" json:"messages_per_day"`
}

// Counter tracks rate limit counters
type Counter struct {
	HourlyCount int       `json:"hourly_count"`
	DailyCount  int       `json:"daily_count"`
	HourStart   time.Time `json:"hour_start"`
	DayStart    time.Time `json:"day_start"`
}

// Limiter implements rate limiting with multiple levels
type Limiter struct {
	db       *bolt.DB
	config   *Config
	counters map[string]*Counter // key -> counter
	mu       sync.RWMutex
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewLimiter creates a new rate limiter
func NewLimiter(db *bolt.DB, cfg *Config) (*Limiter, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRateLimits)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limits bucket: %w", err)
	}

	l := &Limiter{
		db:       db,
		config:   cfg,
		counters: make(map[string]*Counter),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}

	counters, err := readCounters(db)
	if err != nil {
		return nil, fmt.Errorf("failed to load counters: %w", err)
	}
	l.counters = counters

	go l.persistLoop()

	return l, nil
}

// SetClock replaces the time source
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Allow checks if the action is allowed and increments counters
func (l *Limiter) Allow(ctx context.Context, req *Request) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	checks := l.getChecks(req)

	for _, check := range checks {
		counter := l.getOrCreateCounter(check.key, now)
		resetExpiredCounters(counter, now)

		if denied := evaluate(check, counter.HourlyCount, counter.DailyCount, counter, now); denied != nil {
			return denied, nil
		}
	}

	for _, check := range checks {
		counter := l.counters[check.key]
		counter.HourlyCount++
		counter.DailyCount++
	}

	return &Result{Allowed: true}, nil
}

// Check checks if the action would be allowed without incrementing counters
func (l *Limiter) Check(ctx context.Context, req *Request) (*Result, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := l.now()

	for _, check := range l.getChecks(req) {
		counter, exists := l.counters[check.key]
		if !exists {
			continue
		}

		hourly, daily := currentCounts(counter, now)
		if denied := evaluate(check, hourly, daily, counter, now); denied != nil {
			return denied, nil
		}
	}

	return &Result{Allowed: true}, nil
}

func evaluate(check limitCheck, hourly, daily int, counter *Counter, now time.Time) *Result {
	if check.limit.MessagesPerHour > 0 && hourly >= check.limit.MessagesPerHour {
		return &Result{
			DeniedBy:   check.level,
			DeniedKey:  check.key,
			RetryAfter: counter.HourStart.Add(time.Hour).Sub(now),
		}
	}
	if check.limit.MessagesPerDay > 0 && daily >= check.limit.MessagesPerDay {
		return &Result{
			DeniedBy:   check.level,
			DeniedKey:  check.key,
			RetryAfter: counter.DayStart.Add(24 * time.Hour).Sub(now),
		}
	}
	return nil
}

// GetStats returns current rate limit statistics
func (l *Limiter) GetStats(ctx context.Context, level Level, key string) (*Stats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	counter, exists := l.counters[makeKey(level, key)]
	if !exists {
		return &Stats{Level: level, Key: key}, nil
	}
	return counterStats(level, key, counter, l.now()), nil
}

// LimitFor returns the configured limit of a level, nil when unlimited
func (l *Limiter) LimitFor(level Level) *LimitConfig {
	switch level {
	case LevelGlobal:
		return l.config.Global
	case LevelRecipient:
		return l.config.Recipient
	case LevelRecipientDomain:
		return l.config.RecipientDomain
	}
	return nil
}

// AllStats returns statistics for every tracked key
func (l *Limiter) AllStats(ctx context.Context) []*Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return statsFor(l.counters, l.now())
}

// Reset clears the counter for one key
func (l *Limiter) Reset(ctx context.Context, level Level, key string) error {
	fullKey := makeKey(level, key)

	l.mu.Lock()
	delete(l.counters, fullKey)
	l.mu.Unlock()

	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRateLimits).Delete([]byte(fullKey))
	})
}

// Stop stops the rate limiter and persists counters
func (l *Limiter) Stop() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	return l.persistCounters()
}

// Request contains information about the rate limit request
type Request struct {
	Recipient string // recipient address
}

// Result contains the rate limit check result
type Result struct {
	Allowed    bool
	DeniedBy   Level
	DeniedKey  string
	RetryAfter time.Duration
}

// Stats contains rate limit statistics
type Stats struct {
	Level       Level     `json:"level"`
	Key         string    `json:"key"`
	HourlyCount int       `json:"hourly_count"`
	DailyCount  int       `json:"daily_count"`
	HourStart   time.Time `json:"hour_start"`
	DayStart    time.Time `json:"day_start"`
}

// ReadStats reads persisted counters without starting a limiter. Used by
// the CLI against a read-only database.
func ReadStats(db *bolt.DB) ([]*Stats, error) {
	counters, err := readCounters(db)
	if err != nil {
		return nil, err
	}
	return statsFor(counters, time.Now()), nil
}

type limitCheck struct {
	level Level
	key   string
	limit *LimitConfig
}

func (l *Limiter) getChecks(req *Request) []limitCheck {
	var checks []limitCheck

	if l.config.Global != nil {
		checks = append(checks, limitCheck{
			level: LevelGlobal,
			key:   makeKey(LevelGlobal, "global"),
			limit: l.config.Global,
		})
	}

	recipient := strings.ToLower(strings.TrimSpace(req.Recipient))
	if recipient != "" && l.config.Recipient != nil {
		checks = append(checks, limitCheck{
			level: LevelRecipient,
			key:   makeKey(LevelRecipient, recipient),
			limit: l.config.Recipient,
		})
	}

	if domain := email.ExtractDomain(recipient); domain != "" && l.config.RecipientDomain != nil {
		checks = append(checks, limitCheck{
			level: LevelRecipientDomain,
			key:   makeKey(LevelRecipientDomain, domain),
			limit: l.config.RecipientDomain,
		})
	}

	return checks
}

func (l *Limiter) getOrCreateCounter(key string, now time.Time) *Counter {
	counter, exists := l.counters[key]
	if !exists {
		counter = &Counter{
			HourStart: now,
			DayStart:  now,
		}
		l.counters[key] = counter
	}
	return counter
}

func resetExpiredCounters(counter *Counter, now time.Time) {
	if now.Sub(counter.HourStart) >= time.Hour {
		counter.HourlyCount = 0
		counter.HourStart = now
	}
	if now.Sub(counter.DayStart) >= 24*time.Hour {
		counter.DailyCount = 0
		counter.DayStart = now
	}
}

func currentCounts(counter *Counter, now time.Time) (hourly, daily int) {
	hourly, daily = counter.HourlyCount, counter.DailyCount
	if now.Sub(counter.HourStart) >= time.Hour {
		hourly = 0
	}
	if now.Sub(counter.DayStart) >= 24*time.Hour {
		daily = 0
	}
	return hourly, daily
}

func counterStats(level Level, key string, counter *Counter, now time.Time) *Stats {
	hourly, daily := currentCounts(counter, now)
	return &Stats{
		Level:       level,
		Key:         key,
		HourlyCount: hourly,
		DailyCount:  daily,
		HourStart:   counter.HourStart,
		DayStart:    counter.DayStart,
	}
}

func statsFor(counters map[string]*Counter, now time.Time) []*Stats {
	stats := make([]*Stats, 0, len(counters))
	for fullKey, counter := range counters {
		level, key := splitKey(fullKey)
		stats = append(stats, counterStats(level, key, counter, now))
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Level != stats[j].Level {
			return stats[i].Level < stats[j].Level
		}
		return stats[i].Key < stats[j].Key
	})
	return stats
}

func readCounters(db *bolt.DB) (map[string]*Counter, error) {
	counters := make(map[string]*Counter)
	err := db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRateLimits)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var counter Counter
			if err := json.Unmarshal(v, &counter); err != nil {
				return nil // Skip invalid entries
			}
			counters[string(k)] = &counter
			return nil
		})
	})
	return counters, err
}

func (l *Limiter) persistCounters() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRateLimits)
		if bucket == nil {
			return nil
		}

		for key, counter := range l.counters {
			data, err := json.Marshal(counter)
			if err != nil {
				continue
			}
			if err := bucket.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (l *Limiter) persistLoop() {
	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.persistCounters()
		}
	}
}

func makeKey(level Level, key string) string {
	return string(level) + ":" + key
}

func splitKey(fullKey string) (Level, string) {
	level, key, _ := strings.Cut(fullKey, ":")
	return Level(level), key
}
