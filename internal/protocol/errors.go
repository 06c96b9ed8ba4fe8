package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSentence = errors.New("protocol: invalid sentence")
	ErrParse           = fmt.Errorf("%w: no talker/type/payload group", ErrInvalidSentence)
	ErrChecksum        = fmt.Errorf("%w: checksum mismatch", ErrInvalidSentence)
)

// ChecksumError reports a missing or mismatched checksum in strict mode.
// Received is empty when the sentence carried no checksum.
type ChecksumError struct {
	Received string
	Expected string
}

func (e *ChecksumError) Error() string {
	if e.Received == "" {
		return fmt.Sprintf("protocol: checksum missing, expected %s", e.Expected)
	}
	return fmt.Sprintf("protocol: checksum does not match: %s != %s", e.Received, e.Expected)
}

func (e *ChecksumError) Unwrap() error {
	return ErrChecksum
}
