package profile

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestPathsNestUnderBase(t *testing.T) {
	base := BaseDir()
	for _, p := range []string{
		Dir("work"),
		ConfigPath("work"),
		LockPath("work"),
		DBPath("work"),
		LogPath("work"),
	} {
		if !strings.HasPrefix(p, filepath.Join(base, "profiles", "work")) {
			t.Errorf("%q not under profile dir", p)
		}
	}
	if GlobalConfigPath() != filepath.Join(base, "config.toml") {
		t.Errorf("GlobalConfigPath() = %q", GlobalConfigPath())
	}
}

func TestValidateName(t *testing.T) {
	valid := []string{"main", "work", "a", "my-profile_2"}
	for _, n := range valid {
		if err := ValidateName(n); err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", n, err)
		}
	}

	invalid := []string{"", "Work", "with space", "dots.are.bad", "../escape", strings.Repeat("a", 65)}
	for _, n := range invalid {
		if err := ValidateName(n); err == nil {
			t.Errorf("ValidateName(%q) = nil, want error", n)
		}
	}
}

func TestResolveFlagWins(t *testing.T) {
	if got := Resolve("override"); got != "override" {
		t.Errorf("Resolve(override) = %q", got)
	}
}

func TestResolveFallsBackToDefault(t *testing.T) {
	// No global config in the test environment's fake home.
	t.Setenv("HOME", t.TempDir())
	if got := Resolve(""); got != DefaultProfileName {
		t.Errorf("Resolve(\"\") = %q, want %q", got, DefaultProfileName)
	}
}
