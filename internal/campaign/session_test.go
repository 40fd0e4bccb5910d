package campaign

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/foxzi/outreach/internal/geo"
)

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func TestDefaultIsFreshCopy(t *testing.T) {
	a := Default()
	a.Templates[0].Content = "changed"
	a.Industry = "changed"

	b := Default()
	if b.Templates[0].Content != "" || b.Industry != "" {
		t.Errorf("Default() shares state between calls: %+v", b)
	}
}

func TestSessionSnapshotIsCopy(t *testing.T) {
	s := NewSession()
	snap := s.Snapshot()
	snap.Templates[0].Content = "mutated"

	if got := s.Snapshot().Templates[0].Content; got != "" {
		t.Errorf("session mutated through snapshot: %q", got)
	}
}

func TestSessionSetCountryResetsCity(t *testing.T) {
	s := NewSession()

	if err := s.SetCountry("se"); err != nil {
		t.Fatalf("SetCountry(se) error = %v", err)
	}
	if err := s.SetCity("Malmö"); err != nil {
		t.Fatalf("SetCity() error = %v", err)
	}
	if got := s.Snapshot().City; got != "Malmö" {
		t.Fatalf("City = %q, want Malmö", got)
	}

	if err := s.SetCountry("de"); err != nil {
		t.Fatalf("SetCountry(de) error = %v", err)
	}
	if got := s.Snapshot().City; got != geo.AllCities {
		t.Errorf("City after country change = %q, want %q", got, geo.AllCities)
	}

	if err := s.SetCountry(geo.World); err != nil {
		t.Fatalf("SetCountry(world) error = %v", err)
	}
	view := s.View()
	if view.Config.City != geo.AllCities {
		t.Errorf("City for world = %q, want %q", view.Config.City, geo.AllCities)
	}
	if view.CitySelectable {
		t.Error("CitySelectable = true for world")
	}
	if len(view.Cities) != 0 {
		t.Errorf("Cities for world = %v, want empty", view.Cities)
	}
}

func TestSessionSetCountryUnknown(t *testing.T) {
	s := NewSession()
	err := s.SetCountry("zz")
	if !errors.Is(err, ErrUnknownCountry) {
		t.Fatalf("SetCountry(zz) error = %v, want ErrUnknownCountry", err)
	}
	if got := s.Snapshot().Country; got != geo.World {
		t.Errorf("Country = %q after failed change, want %q", got, geo.World)
	}
}

func TestSessionSetCity(t *testing.T) {
	s := NewSession()

	if err := s.SetCity("London"); !errors.Is(err, ErrUnknownCity) {
		t.Errorf("SetCity on world error = %v, want ErrUnknownCity", err)
	}

	if err := s.SetCountry("gb"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetCity("paris"); !errors.Is(err, ErrUnknownCity) {
		t.Errorf("SetCity(paris) error = %v, want ErrUnknownCity", err)
	}
	if err := s.SetCity("glasgow"); err != nil {
		t.Fatalf("SetCity(glasgow) error = %v", err)
	}
	view := s.View()
	if view.Config.City != "Glasgow" {
		t.Errorf("City = %q, want Glasgow", view.Config.City)
	}
	if !view.CitySelectable {
		t.Error("CitySelectable = false for gb")
	}
	if view.CountryName != "United Kingdom" {
		t.Errorf("CountryName = %q", view.CountryName)
	}
}

func TestSessionTemplates(t *testing.T) {
	s := NewSessionWithClock(fixedClock(1700000000000))

	if _, err := s.AddTemplate(); !errors.Is(err, ErrABTestingDisabled) {
		t.Fatalf("AddTemplate without A/B error = %v, want ErrABTestingDisabled", err)
	}

	s.SetABTesting(true)
	first, err := s.AddTemplate()
	if err != nil {
		t.Fatalf("AddTemplate() error = %v", err)
	}
	second, err := s.AddTemplate()
	if err != nil {
		t.Fatalf("AddTemplate() error = %v", err)
	}
	if first.ID != "1700000000000" {
		t.Errorf("first.ID = %q, want timestamp id", first.ID)
	}
	if second.ID != "1700000000001" {
		t.Errorf("second.ID = %q, want bumped timestamp id", second.ID)
	}

	if err := s.UpdateTemplate(second.ID, "Variant B"); err != nil {
		t.Fatalf("UpdateTemplate() error = %v", err)
	}
	if err := s.UpdateTemplate("missing", "x"); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("UpdateTemplate(missing) error = %v, want ErrTemplateNotFound", err)
	}

	if err := s.RemoveTemplate(PrimaryTemplateID); !errors.Is(err, ErrPrimaryTemplate) {
		t.Errorf("RemoveTemplate(primary) error = %v, want ErrPrimaryTemplate", err)
	}
	if err := s.RemoveTemplate(first.ID); err != nil {
		t.Fatalf("RemoveTemplate() error = %v", err)
	}
	if err := s.RemoveTemplate(first.ID); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("second RemoveTemplate() error = %v, want ErrTemplateNotFound", err)
	}

	want := []Template{
		{ID: PrimaryTemplateID, Content: ""},
		{ID: second.ID, Content: "Variant B"},
	}
	if diff := cmp.Diff(want, s.Snapshot().Templates); diff != "" {
		t.Errorf("templates mismatch (-want +got):\n%s", diff)
	}

	if got := len(s.View().ActiveTemplates); got != 2 {
		t.Errorf("active templates with A/B on = %d, want 2", got)
	}
	s.SetABTesting(false)
	active := s.View().ActiveTemplates
	if len(active) != 1 || active[0].ID != PrimaryTemplateID {
		t.Errorf("active templates with A/B off = %+v, want primary only", active)
	}
	if got := len(s.Snapshot().Templates); got != 2 {
		t.Errorf("variants dropped when A/B switched off: %d templates", got)
	}
}

func TestSessionTemplateIDsSkipExisting(t *testing.T) {
	s := NewSessionWithClock(fixedClock(5))
	cfg := Default()
	cfg.ABTestingEnabled = true
	cfg.Templates = append(cfg.Templates, Template{ID: "5"}, Template{ID: "6"})
	if err := s.Replace(cfg); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	tmpl, err := s.AddTemplate()
	if err != nil {
		t.Fatal(err)
	}
	if tmpl.ID != "7" {
		t.Errorf("ID = %q, want 7", tmpl.ID)
	}
}

func TestSessionSetWindow(t *testing.T) {
	s := NewSession()

	if err := s.SetWindow("08:30", "17:45"); err != nil {
		t.Fatalf("SetWindow() error = %v", err)
	}
	cfg := s.Snapshot()
	if cfg.StartTime != "08:30" || cfg.EndTime != "17:45" {
		t.Errorf("window = %s..%s", cfg.StartTime, cfg.EndTime)
	}

	if err := s.SetWindow("25:00", "17:00"); !errors.Is(err, ErrInvalidTime) {
		t.Errorf("SetWindow(25:00) error = %v, want ErrInvalidTime", err)
	}
	if err := s.SetWindow("08:00", "noon"); !errors.Is(err, ErrInvalidTime) {
		t.Errorf("SetWindow(noon) error = %v, want ErrInvalidTime", err)
	}
}

func TestSessionSetLimitsStoredAsIs(t *testing.T) {
	s := NewSession()
	s.SetLimits(60, 5, 3)

	cfg := s.Snapshot()
	if cfg.EmailsPerDay != 60 || cfg.MinInterval != 5 || cfg.MaxInterval != 3 {
		t.Errorf("limits = %d/%d/%d", cfg.EmailsPerDay, cfg.MinInterval, cfg.MaxInterval)
	}

	errs := s.View().Validation.Errors
	want := []string{MsgIndustryRequired, MsgTemplateContent, MsgEmailsPerDay, MsgIntervalOrder}
	if diff := cmp.Diff(want, errs); diff != "" {
		t.Errorf("validation mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionSetSchedule(t *testing.T) {
	s := NewSession()

	if err := s.SetSchedule(Schedule{Kind: ScheduleDateRange, Start: "2025-03-01", End: "2025-03-31", Amount: 9}); err != nil {
		t.Fatalf("SetSchedule() error = %v", err)
	}
	want := DateRange("2025-03-01", "2025-03-31")
	if diff := cmp.Diff(want, s.Snapshot().Schedule); diff != "" {
		t.Errorf("schedule not normalized (-want +got):\n%s", diff)
	}

	if err := s.SetSchedule(ForDuration(0, UnitDays)); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("SetSchedule(0 days) error = %v, want ErrInvalidSchedule", err)
	}
	if got := s.Snapshot().Schedule; got != want {
		t.Errorf("schedule changed after failed update: %+v", got)
	}
}

func TestSessionReplace(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "default", mutate: func(c *Config) {}},
		{name: "no templates", mutate: func(c *Config) { c.Templates = nil }, wantErr: ErrNoTemplates},
		{name: "duplicate ids", mutate: func(c *Config) {
			c.Templates = append(c.Templates, Template{ID: PrimaryTemplateID})
		}, wantErr: ErrTemplateID},
		{name: "empty id", mutate: func(c *Config) { c.Templates[0].ID = "" }, wantErr: ErrTemplateID},
		{name: "unknown country", mutate: func(c *Config) { c.Country = "zz" }, wantErr: ErrUnknownCountry},
		{name: "upper case country", mutate: func(c *Config) {
			c.Country = " US "
			c.City = "Chicago"
		}},
		{name: "city outside country", mutate: func(c *Config) {
			c.Country = "fr"
			c.City = "Berlin"
		}, wantErr: ErrUnknownCity},
		{name: "bad window", mutate: func(c *Config) { c.EndTime = "9pm" }, wantErr: ErrInvalidTime},
		{name: "bad schedule", mutate: func(c *Config) { c.Schedule = Schedule{Kind: "forever"} }, wantErr: ErrInvalidSchedule},
		{name: "out of range limits accepted", mutate: func(c *Config) { c.EmailsPerDay = 500 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession()
			cfg := Default()
			tt.mutate(&cfg)

			err := s.Replace(cfg)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Replace() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Replace() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSessionReplaceCanonicalizesCity(t *testing.T) {
	s := NewSession()
	cfg := Default()
	cfg.Country = "fr"
	cfg.City = "lyon"
	if err := s.Replace(cfg); err != nil {
		t.Fatal(err)
	}
	if got := s.Snapshot().City; got != "Lyon" {
		t.Errorf("City = %q, want Lyon", got)
	}

	cfg.Country = geo.World
	cfg.City = "Lyon"
	if err := s.Replace(cfg); err != nil {
		t.Fatal(err)
	}
	if got := s.Snapshot().City; got != geo.AllCities {
		t.Errorf("City for world = %q, want %q", got, geo.AllCities)
	}
}

func TestSessionReplaceNormalizesCountry(t *testing.T) {
	s := NewSession()
	cfg := Default()
	cfg.Country = "GB"
	cfg.City = "london"
	if err := s.Replace(cfg); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	got := s.Snapshot()
	if got.Country != "gb" || got.City != "London" {
		t.Errorf("location = %q/%q, want gb/London", got.Country, got.City)
	}
}

func TestSessionSetLocation(t *testing.T) {
	tests := []struct {
		name        string
		start       [2]string
		country     string
		city        string
		wantCountry string
		wantCity    string
		wantErr     error
	}{
		{name: "country and city", start: [2]string{geo.World, ""}, country: "SE", city: "malmö", wantCountry: "se", wantCity: "Malmö"},
		{name: "country resets city", start: [2]string{"us", "Chicago"}, country: "us", wantCountry: "us", wantCity: geo.AllCities},
		{name: "city only keeps country", start: [2]string{"gb", "London"}, city: "Leeds", wantCountry: "gb", wantCity: "Leeds"},
		{name: "world ignores all", start: [2]string{"gb", "London"}, country: "world", city: geo.AllCities, wantCountry: geo.World, wantCity: geo.AllCities},
		{name: "unknown country", start: [2]string{"gb", "London"}, country: "xx", city: "London", wantCountry: "gb", wantCity: "London", wantErr: ErrUnknownCountry},
		{name: "bad city keeps country", start: [2]string{"gb", "London"}, country: "de", city: "London", wantCountry: "gb", wantCity: "London", wantErr: ErrUnknownCity},
		{name: "city for world", start: [2]string{geo.World, ""}, city: "London", wantCountry: geo.World, wantCity: geo.AllCities, wantErr: ErrUnknownCity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession()
			if tt.start[0] != geo.World {
				if err := s.SetCountry(tt.start[0]); err != nil {
					t.Fatal(err)
				}
				if err := s.SetCity(tt.start[1]); err != nil {
					t.Fatal(err)
				}
			}

			err := s.SetLocation(tt.country, tt.city)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("SetLocation() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("SetLocation() error = %v, want %v", err, tt.wantErr)
			}

			got := s.Snapshot()
			if got.Country != tt.wantCountry || got.City != tt.wantCity {
				t.Errorf("location = %q/%q, want %q/%q", got.Country, got.City, tt.wantCountry, tt.wantCity)
			}
		})
	}
}

func TestSessionSetLocationConcurrent(t *testing.T) {
	s := NewSession()
	pairs := [][2]string{{"gb", "Leeds"}, {"se", "Uppsala"}, {"fr", "Lyon"}}

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(p [2]string) {
			defer wg.Done()
			if err := s.SetLocation(p[0], p[1]); err != nil {
				t.Error(err)
			}
		}(pairs[i%len(pairs)])
	}
	wg.Wait()

	got := s.Snapshot()
	found := false
	for _, p := range pairs {
		if got.Country == p[0] && got.City == p[1] {
			found = true
		}
	}
	if !found {
		t.Errorf("location %q/%q mixes two updates", got.Country, got.City)
	}
}

func TestSessionReset(t *testing.T) {
	s := NewSession()
	s.SetIndustry("Fintech")
	s.SetABTesting(true)
	s.Reset()

	if diff := cmp.Diff(Default(), s.Snapshot()); diff != "" {
		t.Errorf("Reset() mismatch (-want +got):\n%s", diff)
	}
}

func TestSessionConcurrentMutation(t *testing.T) {
	s := NewSession()
	s.SetABTesting(true)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.AddTemplate(); err != nil {
				t.Error(err)
			}
			s.SetIndustry("Retail")
			_ = s.View()
		}()
	}
	wg.Wait()

	cfg := s.Snapshot()
	if len(cfg.Templates) != 21 {
		t.Fatalf("templates = %d, want 21", len(cfg.Templates))
	}
	seen := map[string]bool{}
	for _, tmpl := range cfg.Templates {
		if seen[tmpl.ID] {
			t.Errorf("duplicate template id %q", tmpl.ID)
		}
		seen[tmpl.ID] = true
	}
}

func TestScheduleDays(t *testing.T) {
	tests := []struct {
		sched Schedule
		want  int
	}{
		{ForDuration(3, UnitDays), 3},
		{ForDuration(2, UnitWeeks), 14},
		{ForDuration(1, UnitMonths), 30},
		{DateRange("2025-01-01", "2025-01-01"), 1},
		{DateRange("2025-01-01", "2025-01-31"), 31},
		{DateRange("2025-02-01", "2025-01-01"), 0},
		{Schedule{Kind: "other"}, 0},
	}
	for _, tt := range tests {
		if got := tt.sched.Days(); got != tt.want {
			t.Errorf("%+v.Days() = %d, want %d", tt.sched, got, tt.want)
		}
	}
}

func TestParseClock(t *testing.T) {
	got, err := ParseClock("21:00")
	if err != nil || got != 21*60 {
		t.Errorf("ParseClock(21:00) = %d, %v", got, err)
	}
	if _, err := ParseClock("9"); !errors.Is(err, ErrInvalidTime) {
		t.Errorf("ParseClock(9) error = %v", err)
	}
}
