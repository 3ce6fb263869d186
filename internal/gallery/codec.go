package gallery

import "encoding/base64"

// EncodeDocKey derives the storage document key for an external identifier.
// Keys are the unpadded base64url encoding of the identifier's UTF-8 bytes,
// matching what the archival pipeline writes, so the same identifier always
// resolves to the same row. The mapping is never reversed.
func EncodeDocKey(rawID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(rawID))
}
