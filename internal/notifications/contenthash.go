package notifications

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// CanonicalPayload re-encodes raw JSON into its canonical form: object keys
// sorted, no insignificant whitespace. Two semantically equal payloads always
// canonicalize to the same bytes, which is what makes the content hash a
// stable dedup key.
func CanonicalPayload(payload json.RawMessage) (json.RawMessage, error) {
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	canonical, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return canonical, nil
}

// TemplateDataHash returns the canonical encoding of payload and its
// SHA-256 digest in hex.
func TemplateDataHash(payload json.RawMessage) (canonical json.RawMessage, hash string, err error) {
	canonical, err = CanonicalPayload(payload)
	if err != nil {
		return nil, "", err
	}
	sum := sha256.Sum256(canonical)
	return canonical, hex.EncodeToString(sum[:]), nil
}

// AttachmentHash returns the SHA-256 digest of the attachment bytes in hex.
// Metadata like file name or content type is deliberately excluded: identical
// bytes dedup to one stored row regardless of how they were named.
func AttachmentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
