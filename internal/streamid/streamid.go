// Package streamid validates publisher-supplied stream identifiers.
//
// Stream IDs end up in ingest URLs and storage keys, so the accepted alphabet
// is deliberately narrow: letters, digits, underscore and hyphen.
package streamid

const maxLength = 255

// IsValid reports whether streamID is acceptable as a stream identifier.
//
// The empty string is invalid; presence checks are the caller's concern but an
// empty ID must never pass validation either.
func IsValid(streamID string) bool {
	if streamID == "" || len(streamID) > maxLength {
		return false
	}
	for i := 0; i < len(streamID); i++ {
		c := streamID[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return false
		}
	}
	return true
}
