package common

import (
	"encoding/hex"
	"strings"
)

// EncodeToString returns the lowercase hex representation of b with the 0x
// prefix.
func EncodeToString(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// DecodeFromString converts a hex string, with or without the 0x prefix, to a
// byte slice.
func DecodeFromString(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return hex.DecodeString(s)
}

// ShortID abbreviates a node identifier for log output.
func ShortID(id string) string {
	id = strings.TrimPrefix(id, "0x")
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "…" + id[len(id)-8:]
}
