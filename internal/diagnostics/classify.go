package diagnostics

import "strings"

// Category is the classification of a runtime error for telemetry
type Category int

const (
	// CategoryNetwork indicates connection, timeout or socket failures
	CategoryNetwork Category = iota
	// CategoryCodec indicates decode, format or negotiation failures
	CategoryCodec
	// CategoryAuth indicates authentication/authorization failures
	CategoryAuth
	// CategoryFlow indicates data-flow failures (not-linked, no surface)
	CategoryFlow
	// CategoryUnknown indicates unclassified errors
	CategoryUnknown
)

// String returns a human-readable string representation of the category
func (c Category) String() string {
	switch c {
	case CategoryNetwork:
		return "network"
	case CategoryCodec:
		return "codec"
	case CategoryAuth:
		return "auth"
	case CategoryFlow:
		return "flow"
	default:
		return "unknown"
	}
}

var (
	authKeywords = []string{
		"unauthorized",
		"status 401",
		"status 403",
		"forbidden",
		"authentication",
		"credentials",
		"permission denied",
	}

	codecKeywords = []string{
		"codec",
		"decode",
		"jpeg",
		"huffman",
		"format",
		"negotiation",
		"not-negotiated",
		"caps",
		"missing plugin",
	}

	flowKeywords = []string{
		"not-linked",
		"not linked",
		"surface",
		"window",
		"stalled",
	}

	networkKeywords = []string{
		"connection",
		"connect",
		"timeout",
		"unreachable",
		"refused",
		"network",
		"resolve",
		"socket",
		"tcp",
		"could not open resource",
		"could not read from resource",
		"broken pipe",
		"reset by peer",
	}
)

// Classify categorizes an error report from its message and detail text.
//
// Classification is keyword based; the most specific categories are
// checked first:
//  1. auth
//  2. codec
//  3. flow
//  4. network
func Classify(message, detail string) Category {
	combined := strings.ToLower(message + " " + detail)
	if strings.TrimSpace(combined) == "" {
		return CategoryUnknown
	}

	switch {
	case containsAny(combined, authKeywords):
		return CategoryAuth
	case containsAny(combined, codecKeywords):
		return CategoryCodec
	case containsAny(combined, flowKeywords):
		return CategoryFlow
	case containsAny(combined, networkKeywords):
		return CategoryNetwork
	default:
		return CategoryUnknown
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
