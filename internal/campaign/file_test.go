package campaign

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
industry: SaaS
country: gb
city: London
templates:
  - id: "1"
    content: "Hello [company name]"
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Industry != "SaaS" || cfg.Country != "gb" || cfg.City != "London" {
		t.Errorf("unexpected fields: %+v", cfg)
	}
	if len(cfg.Templates) != 1 || cfg.Templates[0].Content != "Hello [company name]" {
		t.Errorf("Templates = %+v", cfg.Templates)
	}
	def := Default()
	if cfg.EmailsPerDay != def.EmailsPerDay || cfg.StartTime != def.StartTime || cfg.Schedule != def.Schedule {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestParseJSON(t *testing.T) {
	cfg, err := Parse([]byte(`{"industry": "Retail", "min_interval": 5, "max_interval": 3}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Industry != "Retail" || cfg.MinInterval != 5 || cfg.MaxInterval != 3 {
		t.Errorf("unexpected fields: %+v", cfg)
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse([]byte("industry: [unclosed")); err == nil {
		t.Error("expected error")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campaign.yaml")
	if err := os.WriteFile(path, []byte("emails_per_day: 40\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.EmailsPerDay != 40 {
		t.Errorf("EmailsPerDay = %d, want 40", cfg.EmailsPerDay)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
