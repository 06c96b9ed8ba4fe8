package protocol

import (
	"fmt"
	"regexp"
	"strings"
)

// Leading garbage without '$', optional '$', 2+3 alnum talker/type, payload
// up to '*' or a line terminator, optional two-digit hex checksum.
var sentencePattern = regexp.MustCompile(
	`(?i)^[^$]*\$?(([0-9A-Z]{2})([0-9A-Z]{3}),([^*\r\n]*))(?:\*([0-9A-F]{2}))?`,
)

// Parse decodes text into a Sentence. With strict set, a checksum must be
// present and must match; otherwise any checksum is carried but not verified.
func Parse(text string, strict bool) (Sentence, error) {
	m := sentencePattern.FindStringSubmatch(text)
	if m == nil {
		return Sentence{}, fmt.Errorf("%w: %q", ErrParse, text)
	}
	body, talker, kind, payload, received := m[1], m[2], m[3], m[4], strings.ToUpper(m[5])

	if strict {
		expected := Checksum(body)
		if received != expected {
			return Sentence{}, &ChecksumError{Received: received, Expected: expected}
		}
	}

	talker = strings.ToUpper(talker)
	kind = strings.ToUpper(kind)
	return Sentence{
		Raw:      text,
		Talker:   talker,
		Type:     kind,
		ID:       talker + kind,
		Data:     strings.Split(payload, FieldSeparator),
		Checksum: received,
	}, nil
}
