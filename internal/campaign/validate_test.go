package campaign

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func validConfig() Config {
	cfg := Default()
	cfg.Industry = "SaaS"
	cfg.Templates[0].Content = "Hi [contact name]"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
			want:   []string{},
		},
		{
			name:   "empty industry",
			mutate: func(c *Config) { c.Industry = "" },
			want:   []string{MsgIndustryRequired},
		},
		{
			name:   "whitespace industry",
			mutate: func(c *Config) { c.Industry = " \t\n" },
			want:   []string{MsgIndustryRequired},
		},
		{
			name: "blank variant template",
			mutate: func(c *Config) {
				c.Templates = append(c.Templates, Template{ID: "2", Content: "   "})
			},
			want: []string{MsgTemplateContent},
		},
		{
			name:   "emails per day zero",
			mutate: func(c *Config) { c.EmailsPerDay = 0 },
			want:   []string{MsgEmailsPerDay},
		},
		{
			name:   "emails per day upper bound",
			mutate: func(c *Config) { c.EmailsPerDay = 50 },
			want:   []string{},
		},
		{
			name:   "emails per day above range",
			mutate: func(c *Config) { c.EmailsPerDay = 51 },
			want:   []string{MsgEmailsPerDay},
		},
		{
			name: "zero min interval",
			mutate: func(c *Config) {
				c.MinInterval = 0
			},
			want: []string{MsgIntervalMinimum},
		},
		{
			name: "both intervals zero",
			mutate: func(c *Config) {
				c.MinInterval = 0
				c.MaxInterval = 0
			},
			want: []string{MsgIntervalMinimum, MsgIntervalOrder},
		},
		{
			name: "equal intervals",
			mutate: func(c *Config) {
				c.MinInterval = 4
				c.MaxInterval = 4
			},
			want: []string{MsgIntervalOrder},
		},
		{
			name: "everything wrong",
			mutate: func(c *Config) {
				c.Industry = ""
				c.Templates[0].Content = ""
				c.EmailsPerDay = -1
				c.MinInterval = 0
				c.MaxInterval = -2
			},
			want: []string{
				MsgIndustryRequired,
				MsgTemplateContent,
				MsgEmailsPerDay,
				MsgIntervalMinimum,
				MsgIntervalOrder,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			got := Validate(cfg)
			if diff := cmp.Diff(tt.want, got.Errors); diff != "" {
				t.Errorf("Validate() errors mismatch (-want +got):\n%s", diff)
			}
			if got.IsValid != (len(got.Errors) == 0) {
				t.Errorf("IsValid = %v with %d errors", got.IsValid, len(got.Errors))
			}
			if len(got.Rules) != len(got.Errors) {
				t.Errorf("len(Rules) = %d, len(Errors) = %d", len(got.Rules), len(got.Errors))
			}
		})
	}
}

func TestValidateScenario(t *testing.T) {
	cfg := validConfig()
	cfg.Industry = ""
	cfg.EmailsPerDay = 60
	cfg.MinInterval = 5
	cfg.MaxInterval = 3

	got := Validate(cfg)
	want := []string{MsgIndustryRequired, MsgEmailsPerDay, MsgIntervalOrder}
	if diff := cmp.Diff(want, got.Errors); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
	if got.IsValid {
		t.Error("IsValid = true, want false")
	}
}

func TestValidateIntervalOrderAlwaysReported(t *testing.T) {
	for min := 1; min <= 10; min++ {
		for max := 1; max <= min; max++ {
			cfg := Default()
			cfg.MinInterval = min
			cfg.MaxInterval = max
			found := false
			for _, e := range Validate(cfg).Errors {
				if e == MsgIntervalOrder {
					found = true
				}
			}
			if !found {
				t.Errorf("min=%d max=%d: interval order error missing", min, max)
			}
		}
	}
}

func TestValidateDeterministic(t *testing.T) {
	cfg := Default()
	first := Validate(cfg)
	for i := 0; i < 10; i++ {
		if diff := cmp.Diff(first, Validate(cfg)); diff != "" {
			t.Fatalf("Validate() not deterministic (-first +got):\n%s", diff)
		}
	}
}

func TestValidateDefault(t *testing.T) {
	got := Validate(Default())
	want := []string{MsgIndustryRequired, MsgTemplateContent}
	if diff := cmp.Diff(want, got.Errors); diff != "" {
		t.Errorf("default config errors mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateNoTemplates(t *testing.T) {
	cfg := validConfig()
	cfg.Templates = nil

	got := Validate(cfg)
	if !got.IsValid {
		t.Errorf("Validate() = %v, want valid (template rule covers content only)", got.Errors)
	}
}
