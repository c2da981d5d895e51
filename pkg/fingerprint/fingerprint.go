// Package fingerprint derives the dedupe key for staged raw units. Two
// payloads with the same canonical content get the same fingerprint, so a
// re-delivered scrape stages once. Fields the source schema marks as
// excluded (scrape timestamps, page revisions) do not participate.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// ForUnit computes the fingerprint of a raw unit payload. exclusions holds
// dot-notation paths to skip; excluding a parent object excludes everything
// under it.
func ForUnit(payload json.RawMessage, exclusions map[string]bool) (string, error) {
	var data map[string]any
	if err := json.Unmarshal(payload, &data); err != nil {
		return "", err
	}
	return ForData(data, exclusions), nil
}

// ForData computes the fingerprint of decoded payload data
func ForData(data map[string]any, exclusions map[string]bool) string {
	var b strings.Builder
	writeCanonical(&b, data, exclusions, "")
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// writeCanonical renders a deterministic representation: map keys sorted,
// excluded paths dropped, primitives JSON-encoded.
func writeCanonical(b *strings.Builder, value any, exclusions map[string]bool, path string) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('{')
		first := true
		for _, k := range keys {
			fieldPath := k
			if path != "" {
				fieldPath = path + "." + k
			}
			if excluded(fieldPath, exclusions) {
				continue
			}
			if !first {
				b.WriteByte(',')
			}
			first = false
			keyJSON, _ := json.Marshal(k)
			b.Write(keyJSON)
			b.WriteByte(':')
			writeCanonical(b, v[k], exclusions, fieldPath)
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				b.WriteByte(',')
			}
			// Array indices cannot be excluded individually
			writeCanonical(b, item, exclusions, path)
		}
		b.WriteByte(']')
	default:
		encoded, _ := json.Marshal(v)
		b.Write(encoded)
	}
}

func excluded(fieldPath string, exclusions map[string]bool) bool {
	if len(exclusions) == 0 {
		return false
	}
	if exclusions[fieldPath] {
		return true
	}
	for path := range exclusions {
		if strings.HasPrefix(fieldPath, path+".") {
			return true
		}
	}
	return false
}
