package protocol

import "strings"

const (
	StartDelimiter    = '$'
	ChecksumDelimiter = '*'
	FieldSeparator    = ","
	Terminator        = "\r\n"
)

// Sentence is one parsed NMEA sentence. It is not modified after Parse.
type Sentence struct {
	Raw      string
	Talker   string
	Type     string
	ID       string
	Data     []string
	Checksum string
}

// Field returns the payload field at i, or "" when out of range.
func (s Sentence) Field(i int) string {
	if i < 0 || i >= len(s.Data) {
		return ""
	}
	return s.Data[i]
}

// Body rebuilds the unchecksummed "ID,field,field" form of s.
func (s Sentence) Body() string {
	return s.ID + FieldSeparator + strings.Join(s.Data, FieldSeparator)
}
