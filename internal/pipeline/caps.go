package pipeline

import (
	"mime"
	"strings"
)

// MediaKind is the tag of a ContentType
type MediaKind int

const (
	// KindUnknown is an unparseable or empty descriptor
	KindUnknown MediaKind = iota
	// KindJPEG is image/jpeg
	KindJPEG
	// KindRawVideo is decoded video (video/x-raw)
	KindRawVideo
	// KindText is any text/* payload
	KindText
	// KindOther is a well-formed type this pipeline does not handle
	KindOther
)

func (k MediaKind) String() string {
	switch k {
	case KindJPEG:
		return "jpeg"
	case KindRawVideo:
		return "raw-video"
	case KindText:
		return "text"
	case KindOther:
		return "other"
	default:
		return "unknown"
	}
}

// Well-known media type names
const (
	MediaTypeJPEG     = "image/jpeg"
	MediaTypeRawVideo = "video/x-raw"
)

// ContentType is the runtime-discovered descriptor of the data carried by a
// ConnectionPoint. Kind is derived from Name and is what linking decisions
// match on.
type ContentType struct {
	Kind   MediaKind
	Name   string
	Params map[string]string
}

// ParseContentType parses a MIME string ("image/jpeg", "text/plain;
// charset=utf-8") or a GStreamer caps string ("video/x-raw,format=RGBA").
func ParseContentType(s string) ContentType {
	s = strings.TrimSpace(s)
	if s == "" {
		return ContentType{Kind: KindUnknown}
	}

	// caps strings separate fields with commas; MIME uses semicolons
	if i := strings.IndexByte(s, ','); i >= 0 && !strings.Contains(s[:i], ";") {
		s = s[:i] + ";" + strings.ReplaceAll(s[i+1:], ",", ";")
	}

	name, params, err := mime.ParseMediaType(s)
	if err != nil {
		// keep the bare type so diagnostics can show it
		name = strings.ToLower(strings.TrimSpace(strings.SplitN(s, ";", 2)[0]))
		params = nil
	}

	return ContentType{Kind: kindOf(name), Name: name, Params: params}
}

func kindOf(name string) MediaKind {
	switch {
	case name == MediaTypeJPEG:
		return KindJPEG
	case name == MediaTypeRawVideo:
		return KindRawVideo
	case strings.HasPrefix(name, "text/"):
		return KindText
	case strings.Count(name, "/") == 1 && !strings.HasPrefix(name, "/") && !strings.HasSuffix(name, "/"):
		return KindOther
	default:
		return KindUnknown
	}
}

// String returns the media type name
func (c ContentType) String() string {
	if c.Name == "" {
		return "(none)"
	}
	return c.Name
}
