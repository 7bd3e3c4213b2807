package groups

import "strings"

// Layer identifies which document a value came from. Higher layers override
// lower layers when merging.
type Layer int

const (
	// LayerUnknown guards against misconfiguration so call sites can detect
	// missing metadata.
	LayerUnknown Layer = iota
	// LayerShipped is the read-only configuration plugins publish.
	LayerShipped
	// LayerUser holds the end user's overrides.
	LayerUser
)

func (l Layer) String() string {
	switch l {
	case LayerShipped:
		return "shipped"
	case LayerUser:
		return "user"
	default:
		return "unknown"
	}
}

// ParseLayer converts a string representation into the corresponding Layer.
// Returns LayerUnknown for unrecognised values.
func ParseLayer(value string) Layer {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "shipped", "defaults":
		return LayerShipped
	case "user", "overrides":
		return LayerUser
	default:
		return LayerUnknown
	}
}
