package protocol

import (
	"io"
	"strings"
)

// Format completes body into a wire sentence: a checksum is appended when
// body has none, a '$' is prepended when missing, and terminate appends CRLF.
func Format(body string, terminate bool) string {
	out := strings.TrimRight(body, Terminator)
	if strings.IndexByte(out, ChecksumDelimiter) < 0 {
		out = out + string(ChecksumDelimiter) + Checksum(out)
	}
	if !strings.HasPrefix(out, string(StartDelimiter)) {
		out = string(StartDelimiter) + out
	}
	if terminate {
		out += Terminator
	}
	return out
}

// Encode writes body to w as one terminated sentence.
func Encode(w io.Writer, body string) error {
	_, err := io.WriteString(w, Format(body, true))
	return err
}
