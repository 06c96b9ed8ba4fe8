package protocol

import (
	"fmt"
	"strings"
)

// Checksum returns the two-digit uppercase hex XOR of the bytes between an
// optional leading '$' and the first '*'.
func Checksum(text string) string {
	text = strings.TrimPrefix(text, string(StartDelimiter))
	if i := strings.IndexByte(text, ChecksumDelimiter); i >= 0 {
		text = text[:i]
	}
	var sum byte
	for i := 0; i < len(text); i++ {
		sum ^= text[i]
	}
	return fmt.Sprintf("%02X", sum)
}
