package util

import (
	"encoding/hex"
	"strings"
)

// Hex2Bytes decodes a "0x"-prefixed or bare hex string, returning nil
// on malformed input rather than panicking.
func Hex2Bytes(s string) []byte {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}
