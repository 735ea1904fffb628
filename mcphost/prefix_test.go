package mcphost

import (
	"errors"
	"testing"
)

func TestPrefixRoundTrip(t *testing.T) {
	cases := []struct {
		prefix, sep, id string
		want            string
	}{
		{"weather", "_", "get_forecast", "weather_get_forecast"},
		{"weather", "+", "data://cities/supported", "weather+data://cities/supported"},
		{"api", "/", "sub_tool_name", "api/sub_tool_name"},
	}
	for _, c := range cases {
		got := applyPrefix(c.prefix, c.sep, c.id)
		if got != c.want {
			t.Fatalf("applyPrefix(%q,%q,%q) = %q, want %q", c.prefix, c.sep, c.id, got, c.want)
		}
		back, ok := stripPrefix(c.prefix, c.sep, got)
		if !ok || back != c.id {
			t.Fatalf("stripPrefix(%q,%q,%q) = %q, %v", c.prefix, c.sep, got, back, ok)
		}
	}
}

func TestStripPrefixRejectsNonMatches(t *testing.T) {
	if _, ok := stripPrefix("weather", "_", "calc_add"); ok {
		t.Fatalf("stripped an identifier outside the namespace")
	}
	if _, ok := stripPrefix("weather", "_", "weather"); ok {
		t.Fatalf("stripped a bare prefix with no separator")
	}
}

func TestValidatePrefix(t *testing.T) {
	if err := validatePrefix("weather", "_"); err != nil {
		t.Fatalf("valid prefix rejected: %v", err)
	}

	var sepErr *SeparatorError
	if err := validatePrefix("", "_"); !errors.As(err, &sepErr) {
		t.Fatalf("empty prefix: got %v", err)
	}
	if err := validatePrefix("my_server", "_"); !errors.As(err, &sepErr) {
		t.Fatalf("prefix containing separator: got %v", err)
	}
	if sepErr.Prefix != "my_server" || sepErr.Separator != "_" {
		t.Fatalf("error fields = %#v", sepErr)
	}
}

func TestValidatePrefixAll(t *testing.T) {
	seps := DefaultSeparators()
	if err := validatePrefixAll("weather", seps); err != nil {
		t.Fatalf("valid prefix rejected: %v", err)
	}
	// A prefix legal for names but containing the resource separator
	// fails as a whole.
	if err := validatePrefixAll("a+b", seps); err == nil {
		t.Fatalf("prefix containing resource separator accepted")
	}
}
