package campaign

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/foxzi/outreach/internal/geo"
)

// SessionView is a read-only snapshot of a session for display
type SessionView struct {
	Config          Config           `json:"config"`
	ActiveTemplates []Template       `json:"active_templates"`
	CountryName     string           `json:"country_name"`
	Cities          []string         `json:"cities"`
	CitySelectable  bool             `json:"city_selectable"`
	Validation      ValidationResult `json:"validation"`
}

// Session owns the mutable campaign configuration of one dashboard session.
// All mutation goes through its methods, one at a time.
type Session struct {
	mu     sync.Mutex
	cfg    Config
	now    func() time.Time
	lastID int64
}

// NewSession creates a session starting from Default()
func NewSession() *Session {
	return NewSessionWithClock(time.Now)
}

// NewSessionWithClock creates a session whose template ids are derived from now
func NewSessionWithClock(now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{
		cfg: Default(),
		now: now,
	}
}

// Snapshot returns a copy of the current configuration
func (s *Session) Snapshot() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Clone()
}

// View returns the configuration together with derived display state
func (s *Session) View() SessionView {
	cfg := s.Snapshot()
	cities := geo.CitiesFor(cfg.Country)
	return SessionView{
		Config:          cfg,
		ActiveTemplates: ActiveTemplates(cfg),
		CountryName:     geo.NameFor(cfg.Country),
		Cities:          cities,
		CitySelectable:  cfg.Country != geo.World && len(cities) > 0,
		Validation:      Validate(cfg),
	}
}

// Reset restores the default configuration
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = Default()
}

// Replace swaps in a whole configuration. Location, templates and schedule
// shape are checked; value ranges are left to Validate.
func (s *Session) Replace(cfg Config) error {
	cfg = cfg.Clone()
	cfg.Country = strings.ToLower(strings.TrimSpace(cfg.Country))
	if len(cfg.Templates) == 0 {
		return ErrNoTemplates
	}
	seen := make(map[string]bool, len(cfg.Templates))
	for _, t := range cfg.Templates {
		if t.ID == "" || seen[t.ID] {
			return fmt.Errorf("%w: %q", ErrTemplateID, t.ID)
		}
		seen[t.ID] = true
	}
	if _, ok := geo.Lookup(cfg.Country); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCountry, cfg.Country)
	}
	if cfg.Country == geo.World {
		cfg.City = geo.DefaultCity(geo.World)
	} else {
		city, ok := geo.CanonicalCity(cfg.Country, cfg.City)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownCity, cfg.City)
		}
		cfg.City = city
	}
	if err := checkWindow(cfg.StartTime, cfg.EndTime); err != nil {
		return err
	}
	if err := cfg.Schedule.Validate(); err != nil {
		return err
	}
	cfg.Schedule = cfg.Schedule.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	return nil
}

// SetIndustry updates the target industry
func (s *Session) SetIndustry(industry string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Industry = industry
}

// SetCountry changes the target country and resets the city to the
// country's first city.
func (s *Session) SetCountry(code string) error {
	code = strings.ToLower(strings.TrimSpace(code))
	if _, ok := geo.Lookup(code); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCountry, code)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Country = code
	s.cfg.City = geo.DefaultCity(code)
	return nil
}

// SetCity selects a city of the current country
func (s *Session) SetCity(city string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Country == geo.World {
		return fmt.Errorf("%w: no city selection for %s", ErrUnknownCity, geo.World)
	}
	canonical, ok := geo.CanonicalCity(s.cfg.Country, city)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCity, city)
	}
	s.cfg.City = canonical
	return nil
}

// SetLocation changes country and city in one step. An empty country keeps
// the current one; an empty city selects the country's default when the
// country changes. Nothing is written unless both are valid.
func (s *Session) SetLocation(country, city string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := strings.ToLower(strings.TrimSpace(country))
	if code == "" {
		code = s.cfg.Country
	}
	if _, ok := geo.Lookup(code); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCountry, code)
	}

	selected := s.cfg.City
	if country != "" {
		selected = geo.DefaultCity(code)
	}
	switch {
	case code == geo.World:
		if city != "" && city != geo.AllCities {
			return fmt.Errorf("%w: no city selection for %s", ErrUnknownCity, geo.World)
		}
		selected = geo.DefaultCity(geo.World)
	case city != "":
		canonical, ok := geo.CanonicalCity(code, city)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownCity, city)
		}
		selected = canonical
	}

	s.cfg.Country = code
	s.cfg.City = selected
	return nil
}

// SetABTesting toggles template variants. Variants are kept when the toggle
// is switched off, they just stop being active.
func (s *Session) SetABTesting(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.ABTestingEnabled = enabled
}

// AddTemplate appends an empty template variant
func (s *Session) AddTemplate() (Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.ABTestingEnabled {
		return Template{}, ErrABTestingDisabled
	}
	t := Template{ID: s.nextID()}
	s.cfg.Templates = append(s.cfg.Templates, t)
	return t, nil
}

// UpdateTemplate replaces the content of a template
func (s *Session) UpdateTemplate(id, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.cfg.Templates {
		if s.cfg.Templates[i].ID == id {
			s.cfg.Templates[i].Content = content
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrTemplateNotFound, id)
}

// RemoveTemplate deletes a template variant. The primary template stays.
func (s *Session) RemoveTemplate(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, t := range s.cfg.Templates {
		if t.ID != id {
			continue
		}
		if i == 0 {
			return ErrPrimaryTemplate
		}
		s.cfg.Templates = append(s.cfg.Templates[:i:i], s.cfg.Templates[i+1:]...)
		return nil
	}
	return fmt.Errorf("%w: %q", ErrTemplateNotFound, id)
}

// SetLimits stores the sending-rate limits as given; Validate reports
// out-of-range values.
func (s *Session) SetLimits(emailsPerDay, minInterval, maxInterval int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.EmailsPerDay = emailsPerDay
	s.cfg.MinInterval = minInterval
	s.cfg.MaxInterval = maxInterval
}

// SetWindow sets the daily sending window
func (s *Session) SetWindow(start, end string) error {
	if err := checkWindow(start, end); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.StartTime = start
	s.cfg.EndTime = end
	return nil
}

// SetSchedule sets the campaign length
func (s *Session) SetSchedule(sched Schedule) error {
	if err := sched.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Schedule = sched.Normalize()
	return nil
}

// nextID returns a millisecond timestamp id, bumped past the last one handed
// out so ids stay unique within the session. Caller holds s.mu.
func (s *Session) nextID() string {
	id := s.now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	for s.hasTemplate(strconv.FormatInt(id, 10)) {
		id++
	}
	s.lastID = id
	return strconv.FormatInt(id, 10)
}

func (s *Session) hasTemplate(id string) bool {
	for _, t := range s.cfg.Templates {
		if t.ID == id {
			return true
		}
	}
	return false
}

func checkWindow(start, end string) error {
	if _, err := ParseClock(start); err != nil {
		return err
	}
	if _, err := ParseClock(end); err != nil {
		return err
	}
	return nil
}
