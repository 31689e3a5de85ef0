// Package nfcguid converts the raw bytes read from an NFC tag into the
// card identifier the backend indexes cards by.
//
// The tag stores the identifier in memory pages 4–7 (16 bytes) using the
// mixed-endian layout produced by the .NET Guid(byte[]) constructor: the first
// three groups are little-endian, the last two big-endian.
//
//	bytes: 04 3A 2B 91 | 55 66 | 77 88 | 11 22 | 33 44 55 66 77 88
//	guid:  912b3a04   - 6655  - 8877  - 1122  - 334455667788
package nfcguid

import (
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// TagSize is the number of bytes read from tag pages 4–7.
const TagSize = 16

var (
	// ErrInsufficientData is returned when fewer than TagSize bytes are supplied.
	ErrInsufficientData = errors.New("insufficient tag data")
	// ErrMalformedGuid is returned when a string is not a canonical GUID.
	ErrMalformedGuid = errors.New("malformed guid")
)

var canonical = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// order lists, for each output byte position, the input byte it is taken from.
var order = [TagSize]int{3, 2, 1, 0, 5, 4, 7, 6, 8, 9, 10, 11, 12, 13, 14, 15}

// Guid is a canonical lower-case, hyphenated card identifier.
type Guid string

// String implements fmt.Stringer.
func (g Guid) String() string { return string(g) }

// UUID returns g as a uuid.UUID (RFC 4122 textual byte order).
// The zero UUID is returned for a Guid that does not parse.
func (g Guid) UUID() uuid.UUID {
	u, err := uuid.Parse(string(g))
	if err != nil {
		return uuid.Nil
	}
	return u
}

// Decode builds the Guid for a tag page read. Only the first TagSize bytes are
// used; fewer than TagSize bytes is an error and no Guid is produced.
func Decode(b []byte) (Guid, error) {
	if len(b) < TagSize {
		return "", fmt.Errorf("decode guid: got %d bytes, need %d: %w", len(b), TagSize, ErrInsufficientData)
	}

	var ordered [TagSize]byte
	for i, src := range order {
		ordered[i] = b[src]
	}

	var sb strings.Builder
	sb.Grow(36)
	sb.WriteString(hex.EncodeToString(ordered[0:4]))
	sb.WriteByte('-')
	sb.WriteString(hex.EncodeToString(ordered[4:6]))
	sb.WriteByte('-')
	sb.WriteString(hex.EncodeToString(ordered[6:8]))
	sb.WriteByte('-')
	sb.WriteString(hex.EncodeToString(ordered[8:10]))
	sb.WriteByte('-')
	sb.WriteString(hex.EncodeToString(ordered[10:16]))
	return Guid(sb.String()), nil
}

// Encode is the inverse of Decode: it returns the tag bytes that decode to g.
func Encode(g Guid) ([TagSize]byte, error) {
	var out [TagSize]byte
	if !canonical.MatchString(string(g)) {
		return out, fmt.Errorf("encode guid %q: %w", g, ErrMalformedGuid)
	}
	raw, err := hex.DecodeString(strings.ReplaceAll(string(g), "-", ""))
	if err != nil {
		return out, fmt.Errorf("encode guid %q: %w", g, ErrMalformedGuid)
	}
	for i, src := range order {
		out[src] = raw[i]
	}
	return out, nil
}

// Parse validates s as a canonical GUID. Upper-case input is accepted and
// normalised.
func Parse(s string) (Guid, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	if !canonical.MatchString(norm) {
		return "", fmt.Errorf("parse guid %q: %w", s, ErrMalformedGuid)
	}
	return Guid(norm), nil
}

// DecodeHex decodes a hex dump of a tag page read. Colons, spaces and dashes
// between bytes are ignored, so both "043A2B91..." and "04:3A:2B:91:..." work.
func DecodeHex(s string) (Guid, error) {
	b, err := TagBytes(s)
	if err != nil {
		return "", err
	}
	return Decode(b)
}

// TagBytes parses a hex dump of a tag page read into raw bytes, with the same
// separator rules as DecodeHex. The length is not checked.
func TagBytes(s string) ([]byte, error) {
	clean := strings.NewReplacer(":", "", " ", "", "-", "").Replace(strings.TrimSpace(s))
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("decode tag hex: %w", err)
	}
	return b, nil
}

// HexDump renders b as colon-separated upper-case hex. It is meant for log
// fields only and is never a substitute for a Guid.
func HexDump(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, ":")
}
