// Package campaign holds the outreach campaign configuration model, its
// validation rules and the session-scoped holder that the HTTP layer mutates.
package campaign

import (
	"errors"
	"fmt"
	"time"

	"github.com/foxzi/outreach/internal/geo"
)

// PrimaryTemplateID is the id of the template every new campaign starts with
const PrimaryTemplateID = "1"

// Session mutation errors
var (
	ErrPrimaryTemplate   = errors.New("primary template cannot be removed")
	ErrTemplateNotFound  = errors.New("template not found")
	ErrABTestingDisabled = errors.New("enable A/B testing to add template variants")
	ErrUnknownCountry    = errors.New("unknown country")
	ErrUnknownCity       = errors.New("city is not available for the selected country")
	ErrNoTemplates       = errors.New("campaign needs at least one template")
	ErrTemplateID        = errors.New("template ids must be unique and non-empty")
	ErrInvalidSchedule   = errors.New("invalid schedule")
	ErrInvalidTime       = errors.New("invalid time of day")
)

// Template is one email body variant
type Template struct {
	ID      string `json:"id" yaml:"id"`
	Content string `json:"content" yaml:"content"`
}

// Config is the in-memory shape of a campaign
type Config struct {
	Industry         string     `json:"industry" yaml:"industry"`
	Country          string     `json:"country" yaml:"country"`
	City             string     `json:"city" yaml:"city"`
	Templates        []Template `json:"templates" yaml:"templates"`
	ABTestingEnabled bool       `json:"ab_testing_enabled" yaml:"ab_testing_enabled"`
	EmailsPerDay     int        `json:"emails_per_day" yaml:"emails_per_day"`
	MinInterval      int        `json:"min_interval" yaml:"min_interval"` // minutes
	MaxInterval      int        `json:"max_interval" yaml:"max_interval"` // minutes
	StartTime        string     `json:"start_time" yaml:"start_time"`     // HH:MM
	EndTime          string     `json:"end_time" yaml:"end_time"`         // HH:MM
	Schedule         Schedule   `json:"schedule" yaml:"schedule"`
}

// Default returns a fresh copy of the configuration a new session starts with
func Default() Config {
	return Config{
		Industry:         "",
		Country:          geo.World,
		City:             geo.AllCities,
		Templates:        []Template{{ID: PrimaryTemplateID, Content: ""}},
		ABTestingEnabled: false,
		EmailsPerDay:     25,
		MinInterval:      3,
		MaxInterval:      6,
		StartTime:        "09:00",
		EndTime:          "21:00",
		Schedule: Schedule{
			Kind:   ScheduleDuration,
			Amount: 1,
			Unit:   UnitWeeks,
		},
	}
}

// Clone returns a deep copy
func (c Config) Clone() Config {
	if c.Templates != nil {
		tmpls := make([]Template, len(c.Templates))
		copy(tmpls, c.Templates)
		c.Templates = tmpls
	}
	return c
}

// Primary returns the primary template, if any
func (c Config) Primary() (Template, bool) {
	if len(c.Templates) == 0 {
		return Template{}, false
	}
	return c.Templates[0], true
}

// ActiveTemplates returns the templates used for sending: every variant when
// A/B testing is on, otherwise just the primary template.
func ActiveTemplates(c Config) []Template {
	if len(c.Templates) == 0 {
		return []Template{}
	}
	if !c.ABTestingEnabled {
		return []Template{c.Templates[0]}
	}
	out := make([]Template, len(c.Templates))
	copy(out, c.Templates)
	return out
}

// Schedule kinds
const (
	ScheduleDateRange = "date_range"
	ScheduleDuration  = "duration"
)

// Duration units
const (
	UnitDays   = "days"
	UnitWeeks  = "weeks"
	UnitMonths = "months"
)

const dateLayout = "2006-01-02"

// Schedule is the campaign length, either an explicit date range or a
// relative duration. Only the fields of the selected Kind are meaningful.
type Schedule struct {
	Kind   string `json:"kind" yaml:"kind"`
	Start  string `json:"start,omitempty" yaml:"start,omitempty"` // YYYY-MM-DD
	End    string `json:"end,omitempty" yaml:"end,omitempty"`     // YYYY-MM-DD
	Amount int    `json:"amount,omitempty" yaml:"amount,omitempty"`
	Unit   string `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// DateRange builds a date range schedule
func DateRange(start, end string) Schedule {
	return Schedule{Kind: ScheduleDateRange, Start: start, End: end}
}

// ForDuration builds a relative duration schedule
func ForDuration(amount int, unit string) Schedule {
	return Schedule{Kind: ScheduleDuration, Amount: amount, Unit: unit}
}

// Validate checks that the schedule is well-formed for its kind
func (s Schedule) Validate() error {
	switch s.Kind {
	case ScheduleDateRange:
		start, err := time.Parse(dateLayout, s.Start)
		if err != nil {
			return fmt.Errorf("%w: start date %q", ErrInvalidSchedule, s.Start)
		}
		end, err := time.Parse(dateLayout, s.End)
		if err != nil {
			return fmt.Errorf("%w: end date %q", ErrInvalidSchedule, s.End)
		}
		if end.Before(start) {
			return fmt.Errorf("%w: end date is before start date", ErrInvalidSchedule)
		}
	case ScheduleDuration:
		if s.Amount < 1 {
			return fmt.Errorf("%w: duration must be at least 1", ErrInvalidSchedule)
		}
		switch s.Unit {
		case UnitDays, UnitWeeks, UnitMonths:
		default:
			return fmt.Errorf("%w: unknown duration unit %q", ErrInvalidSchedule, s.Unit)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSchedule, s.Kind)
	}
	return nil
}

// Normalize drops the fields that do not belong to the schedule kind
func (s Schedule) Normalize() Schedule {
	switch s.Kind {
	case ScheduleDateRange:
		return Schedule{Kind: s.Kind, Start: s.Start, End: s.End}
	case ScheduleDuration:
		return Schedule{Kind: s.Kind, Amount: s.Amount, Unit: s.Unit}
	}
	return s
}

// Days returns the campaign length in days. Months count as 30 days.
func (s Schedule) Days() int {
	switch s.Kind {
	case ScheduleDateRange:
		start, err1 := time.Parse(dateLayout, s.Start)
		end, err2 := time.Parse(dateLayout, s.End)
		if err1 != nil || err2 != nil || end.Before(start) {
			return 0
		}
		return int(end.Sub(start).Hours()/24) + 1
	case ScheduleDuration:
		switch s.Unit {
		case UnitDays:
			return s.Amount
		case UnitWeeks:
			return s.Amount * 7
		case UnitMonths:
			return s.Amount * 30
		}
	}
	return 0
}

// ParseClock parses an "HH:MM" time of day into minutes after midnight
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
