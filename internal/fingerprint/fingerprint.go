// Package fingerprint derives the content-addressed identifiers used as
// dedup keys everywhere else. Producers and consumers may run in
// different processes, so the digest must be stable across restarts,
// encodings and incidental formatting differences.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// separator joins normalized parts inside the digest. Normalization
// strips control characters, so it can never occur inside a text part.
const separator = 0x1f

// Part is one input to a digest: either normalized text or raw bytes.
type Part struct {
	text   string
	data   []byte
	binary bool
}

// Text wraps a string part. It is normalized before hashing.
func Text(s string) Part {
	return Part{text: s}
}

// Bytes wraps a binary part. Content is hashed as-is.
func Bytes(b []byte) Part {
	return Part{data: b, binary: true}
}

// Compute returns the hex SHA-256 digest of the given parts. Equal
// logical content always yields the same digest.
func Compute(parts ...Part) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{separator})
		}
		if p.binary {
			h.Write(p.data)
			continue
		}
		h.Write([]byte(Normalize(p.text)))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Email fingerprints a unit of work from its stable identifying fields.
func Email(subject, body string) string {
	return Compute(Text(subject), Text(body))
}

// Attachment fingerprints attachment content independently of the
// parent email.
func Attachment(content []byte) string {
	return Compute(Bytes(content))
}

// Normalize case-folds, NFKC-normalizes and whitespace-collapses text
// so incidental formatting differences do not change the digest.
// Control characters are dropped.
func Normalize(s string) string {
	s = strings.ToValidUTF8(s, "�")
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if r != '\t' && r != '\n' && r != '\r' && unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
