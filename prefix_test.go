package groups

import (
	"encoding/json"
	"testing"
)

func TestBestMatchPrefersExactOverStartsWith(t *testing.T) {
	entries := []PrefixEntry{
		MustPrefixEntry("example.alert.", MatchStartsWith),
		MustPrefixEntry("example.alert.urgent", MatchExact),
	}

	match, ok := BestMatch("example.alert.urgent", entries)
	if !ok {
		t.Fatalf("expected a match for the exact id")
	}
	if match.Index != 1 || match.Tier != TierExact || match.Entry.Mode() != MatchExact {
		t.Fatalf("expected exact entry to win, got %+v", match)
	}

	match, ok = BestMatch("example.alert.normal", entries)
	if !ok {
		t.Fatalf("expected a match for the startsWith id")
	}
	if match.Index != 0 || match.Tier != TierStartsWith {
		t.Fatalf("expected startsWith entry, got %+v", match)
	}
}

func TestBestMatchPrefersLongerPrefix(t *testing.T) {
	entries := []PrefixEntry{
		MustPrefixEntry("edr-", MatchStartsWith),
		MustPrefixEntry("edr-docking-", MatchStartsWith),
		MustPrefixEntry("edr-dock", MatchStartsWith),
	}
	match, ok := BestMatch("edr-docking-station", entries)
	if !ok || match.Index != 1 {
		t.Fatalf("expected longest prefix at index 1, got %+v (ok=%v)", match, ok)
	}
}

func TestBestMatchTieKeepsEarliestEntry(t *testing.T) {
	entries := []PrefixEntry{
		MustPrefixEntry("foo-", MatchStartsWith),
		MustPrefixEntry("FOO-", MatchStartsWith),
	}
	match, ok := BestMatch("foo-bar", entries)
	if !ok || match.Index != 0 {
		t.Fatalf("expected first declared entry, got %+v", match)
	}
	if match.Entry.Value() != "foo-" {
		t.Fatalf("expected authored casing to be kept, got %q", match.Entry.Value())
	}
}

func TestBestMatchIsCaseInsensitive(t *testing.T) {
	entries := []PrefixEntry{MustPrefixEntry("Foo-Tick", MatchExact)}
	match, ok := BestMatch("FOO-tick", entries)
	if !ok || match.Tier != TierExact {
		t.Fatalf("expected case-insensitive exact match, got %+v", match)
	}
	if match.Entry.Value() != "Foo-Tick" {
		t.Fatalf("expected display value Foo-Tick, got %q", match.Entry.Value())
	}
	if _, ok := BestMatch("foo-tickle", entries); ok {
		t.Fatalf("exact entry must not match a longer id")
	}
}

func TestNewPrefixEntryRejectsBlankValues(t *testing.T) {
	if _, err := NewPrefixEntry("   ", MatchStartsWith); !IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	entry, err := NewPrefixEntry("  foo- ", MatchStartsWith)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Value() != "foo-" {
		t.Fatalf("expected trimmed value, got %q", entry.Value())
	}
}

func TestPrefixEntryKeyDeduplicates(t *testing.T) {
	a := MustPrefixEntry("Foo-", MatchStartsWith)
	b := MustPrefixEntry("foo-", MatchStartsWith)
	c := MustPrefixEntry("foo-", MatchExact)
	if a.Key() != b.Key() {
		t.Fatalf("expected equal keys for differently cased values")
	}
	if a.Key() == c.Key() {
		t.Fatalf("match mode must be part of the key")
	}
}

func TestPrefixEntryJSON(t *testing.T) {
	entries := []PrefixEntry{
		MustPrefixEntry("foo-alert-", MatchStartsWith),
		MustPrefixEntry("foo-tick", MatchExact),
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `["foo-alert-",{"value":"foo-tick","matchMode":"exact"}]`
	if string(raw) != want {
		t.Fatalf("unexpected encoding:\n got %s\nwant %s", raw, want)
	}

	var decoded []PrefixEntry
	if err := json.Unmarshal([]byte(`["a-", {"value": "b", "match_mode": "EXACT"}]`), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded) != 2 || decoded[1].Mode() != MatchExact || decoded[0].Mode() != MatchStartsWith {
		t.Fatalf("unexpected decoded entries: %v", decoded)
	}
}

func TestParseMatchMode(t *testing.T) {
	cases := map[string]MatchMode{
		"":            MatchStartsWith,
		"startsWith":  MatchStartsWith,
		"starts_with": MatchStartsWith,
		"starts-with": MatchStartsWith,
		"Exact":       MatchExact,
	}
	for input, want := range cases {
		got, err := ParseMatchMode(input)
		if err != nil {
			t.Fatalf("ParseMatchMode(%q) error: %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseMatchMode(%q) = %v, want %v", input, got, want)
		}
	}
	if _, err := ParseMatchMode("fuzzy"); !IsValidationError(err) {
		t.Fatalf("expected validation error for unknown mode, got %v", err)
	}
}

func TestParsePrefixSpecs(t *testing.T) {
	entries, err := ParsePrefixSpecs([]PrefixSpec{StartsWith("a-"), Exact("a-"), StartsWith("A-")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected duplicate to be dropped, got %v", entries)
	}
	if _, err := ParsePrefixSpecs(nil); err == nil {
		t.Fatalf("expected empty spec list to fail")
	}
	if _, err := ParsePrefixSpecs([]PrefixSpec{{Value: "x", MatchMode: "regex"}}); !IsValidationError(err) {
		t.Fatalf("expected validation error for unknown match mode, got %v", err)
	}
}
