package codec

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrUnsupportedContentType = errors.New("unsupported_content_type")

// DecodeJSON strips a leading UTF-8 BOM before parsing.
func DecodeJSON(b []byte, out any) error {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		b = b[3:]
	}
	return json.Unmarshal(b, out)
}

// Decode picks CBOR or JSON from the content type, falling back to
// sniffing a JSON object or array.
func Decode(contentType string, b []byte, out any) error {
	ct := strings.ToLower(contentType)
	switch {
	case strings.HasPrefix(ct, "application/cbor"):
		return DecodeCBOR(b, out)
	case strings.HasPrefix(ct, "application/json"), len(b) > 0 && (b[0] == '{' || b[0] == '['):
		return DecodeJSON(b, out)
	case len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF:
		return DecodeJSON(b, out)
	default:
		return ErrUnsupportedContentType
	}
}
