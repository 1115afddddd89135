package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/inkdot-dev/inkpress/pkg/layout"
)

func writeProfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	return path
}

func TestLoadProfileOverridesDefaults(t *testing.T) {
	path := writeProfile(t, `
font_size = 26.0
margin = 32
justify = false
orientation = "landscape"
`)
	cfg, err := loadProfile(path)
	if err != nil {
		t.Fatalf("loadProfile: %v", err)
	}
	if cfg.FontSize != 26 {
		t.Errorf("FontSize = %g, want 26", cfg.FontSize)
	}
	if cfg.Margin != 32 {
		t.Errorf("Margin = %d, want 32", cfg.Margin)
	}
	if cfg.Justify {
		t.Error("Justify not overridden")
	}
	if cfg.Orientation != layout.Landscape {
		t.Errorf("Orientation = %q", cfg.Orientation)
	}

	// untouched keys keep their defaults
	def := layout.Default()
	if cfg.PageWidth != def.PageWidth || cfg.LineHeight != def.LineHeight {
		t.Error("untouched keys changed")
	}
}

func TestLoadProfileRejectsUnknownKeys(t *testing.T) {
	path := writeProfile(t, `font_szie = 26.0`)
	if _, err := loadProfile(path); err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestLoadProfileMissingFile(t *testing.T) {
	if _, err := loadProfile(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
