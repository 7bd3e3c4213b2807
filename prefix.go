package groups

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// MatchMode selects how a PrefixEntry compares against a payload id.
type MatchMode uint8

const (
	// MatchStartsWith matches any id that begins with the entry value.
	MatchStartsWith MatchMode = iota
	// MatchExact matches only an id equal to the entry value.
	MatchExact
)

func (m MatchMode) String() string {
	switch m {
	case MatchExact:
		return "exact"
	default:
		return "startsWith"
	}
}

// ParseMatchMode accepts "exact" or "startsWith" in any casing, with optional
// '_' or '-' separators. An empty string selects MatchStartsWith.
func ParseMatchMode(value string) (MatchMode, error) {
	token := strings.ToLower(strings.TrimSpace(value))
	token = strings.NewReplacer("_", "", "-", "", " ", "").Replace(token)
	switch token {
	case "", "startswith", "prefix":
		return MatchStartsWith, nil
	case "exact":
		return MatchExact, nil
	default:
		return MatchStartsWith, invalidf("matchMode", "unsupported match mode %q", value)
	}
}

// Match tiers, strongest first.
const (
	TierExact      = 2
	TierStartsWith = 1
	TierNone       = 0
)

// Fold case-folds s for comparisons. Original casing is kept elsewhere for
// display.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// PrefixKey is the identity of a PrefixEntry for deduplication.
type PrefixKey struct {
	Folded string
	Mode   MatchMode
}

// PrefixEntry is an immutable matching rule. The zero value matches nothing.
type PrefixEntry struct {
	value  string
	folded string
	mode   MatchMode
}

// NewPrefixEntry validates value and returns the entry. Surrounding whitespace
// is trimmed; the remaining casing is preserved.
func NewPrefixEntry(value string, mode MatchMode) (PrefixEntry, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return PrefixEntry{}, invalidf("idPrefixes", "prefix value must not be empty")
	}
	if mode != MatchStartsWith && mode != MatchExact {
		return PrefixEntry{}, invalidf("matchMode", "unsupported match mode %d", mode)
	}
	return PrefixEntry{value: trimmed, folded: Fold(trimmed), mode: mode}, nil
}

// MustPrefixEntry is NewPrefixEntry for literals known to be valid.
func MustPrefixEntry(value string, mode MatchMode) PrefixEntry {
	entry, err := NewPrefixEntry(value, mode)
	if err != nil {
		panic(err)
	}
	return entry
}

// Value returns the entry value in its authored casing.
func (e PrefixEntry) Value() string { return e.value }

// Mode returns the entry's match mode.
func (e PrefixEntry) Mode() MatchMode { return e.mode }

// Key returns the case-folded identity of the entry.
func (e PrefixEntry) Key() PrefixKey {
	return PrefixKey{Folded: e.folded, Mode: e.mode}
}

// Tier scores the entry against an already case-folded payload id.
func (e PrefixEntry) Tier(foldedID string) int {
	if e.folded == "" {
		return TierNone
	}
	switch e.mode {
	case MatchExact:
		if foldedID == e.folded {
			return TierExact
		}
	default:
		if strings.HasPrefix(foldedID, e.folded) {
			return TierStartsWith
		}
	}
	return TierNone
}

func (e PrefixEntry) String() string {
	if e.mode == MatchExact {
		return fmt.Sprintf("%s (exact)", e.value)
	}
	return e.value
}

// MarshalJSON emits a bare string for startsWith entries and an object for
// exact entries.
func (e PrefixEntry) MarshalJSON() ([]byte, error) {
	if e.mode == MatchStartsWith {
		return json.Marshal(e.value)
	}
	return json.Marshal(struct {
		Value     string `json:"value"`
		MatchMode string `json:"matchMode"`
	}{Value: e.value, MatchMode: e.mode.String()})
}

// UnmarshalJSON accepts either serialized form.
func (e *PrefixEntry) UnmarshalJSON(data []byte) error {
	value, err := decodeLoose(data)
	if err != nil {
		return err
	}
	entry, verr := parsePrefixItem(value)
	if verr != nil {
		return verr
	}
	*e = entry
	return nil
}

// PrefixMatch describes the winning entry of BestMatch.
type PrefixMatch struct {
	Entry PrefixEntry
	Index int
	Tier  int
}

// Length returns the length of the winning entry value.
func (m PrefixMatch) Length() int { return len(m.Entry.folded) }

// Better reports whether m outranks other: higher tier first, then the longer
// value. Equal candidates are not better, so the earlier one is kept.
func (m PrefixMatch) Better(other PrefixMatch) bool {
	if m.Tier != other.Tier {
		return m.Tier > other.Tier
	}
	return m.Length() > other.Length()
}

// BestMatch returns the entry that best matches id. Ties keep the
// earliest-declared entry.
func BestMatch(id string, entries []PrefixEntry) (PrefixMatch, bool) {
	return bestMatchFolded(Fold(id), entries)
}

func bestMatchFolded(foldedID string, entries []PrefixEntry) (PrefixMatch, bool) {
	var best PrefixMatch
	found := false
	for i, entry := range entries {
		tier := entry.Tier(foldedID)
		if tier == TierNone {
			continue
		}
		candidate := PrefixMatch{Entry: entry, Index: i, Tier: tier}
		if !found || candidate.Better(best) {
			best = candidate
			found = true
		}
	}
	return best, found
}

// PrefixSpec is the loose authoring form of a prefix entry.
type PrefixSpec struct {
	Value     string
	MatchMode string
}

// StartsWith builds a startsWith PrefixSpec.
func StartsWith(value string) PrefixSpec { return PrefixSpec{Value: value} }

// Exact builds an exact PrefixSpec.
func Exact(value string) PrefixSpec { return PrefixSpec{Value: value, MatchMode: "exact"} }

// ParsePrefixSpecs strictly converts specs into entries. Duplicate keys keep
// the first occurrence, and an empty result is rejected.
func ParsePrefixSpecs(specs []PrefixSpec) ([]PrefixEntry, error) {
	items := make([]any, 0, len(specs))
	for _, spec := range specs {
		items = append(items, map[string]any{"value": spec.Value, "matchMode": spec.MatchMode})
	}
	outcome := NormalizePrefixes(items)
	entries, ok := outcome.Value()
	if !ok {
		return nil, outcome.Err()
	}
	return entries, nil
}

func parsePrefixItem(item any) (PrefixEntry, *ValidationError) {
	switch typed := item.(type) {
	case string:
		entry, err := NewPrefixEntry(typed, MatchStartsWith)
		if err != nil {
			return PrefixEntry{}, err.(*ValidationError)
		}
		return entry, nil
	case map[string]any:
		raw, ok := typed["value"]
		if !ok {
			return PrefixEntry{}, invalidf("idPrefixes", "prefix object is missing %q", "value")
		}
		value, ok := raw.(string)
		if !ok {
			return PrefixEntry{}, invalidf("idPrefixes", "prefix value must be a string, got %s", describeLoose(raw))
		}
		modeRaw, ok := typed["matchMode"]
		if !ok {
			modeRaw = typed["match_mode"]
		}
		modeText := ""
		if modeRaw != nil {
			text, ok := modeRaw.(string)
			if !ok {
				return PrefixEntry{}, invalidf("matchMode", "match mode must be a string, got %s", describeLoose(modeRaw))
			}
			modeText = text
		}
		mode, err := ParseMatchMode(modeText)
		if err != nil {
			return PrefixEntry{}, err.(*ValidationError)
		}
		entry, err := NewPrefixEntry(value, mode)
		if err != nil {
			return PrefixEntry{}, err.(*ValidationError)
		}
		return entry, nil
	default:
		return PrefixEntry{}, invalidf("idPrefixes", "prefix must be a string or object, got %s", describeLoose(item))
	}
}
