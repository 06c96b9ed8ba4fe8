package protocol

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/danmuck/nmead/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
)

const hrbBody = "RBHRB,101218,161229,21.31198,N,157.88972,W,AUVSI,2"

func TestChecksumKnownValues(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		hrbBody:                           "01",
		"$" + hrbBody:                     "01",
		"$" + hrbBody + "*01":             "01",
		"$RBDOK,101218,161229,AUVSI,2*3E": "3E",
		"RBHRB,Test":                      "52",
		"":                                "00",
	}
	for in, want := range cases {
		if got := Checksum(in); got != want {
			t.Fatalf("Checksum(%q) got=%q want=%q", in, got, want)
		}
	}
}

func TestChecksumIgnoresPrefixAndSuffix(t *testing.T) {
	testlog.Start(t)
	a := Checksum("RBHRB,Test")
	b := Checksum("$RBHRB,Test")
	c := Checksum("$RBHRB,Test*00")
	d := Checksum("RBHRB,Test*FF")
	if a != b || b != c || c != d {
		t.Fatalf("checksum not invariant: %q %q %q %q", a, b, c, d)
	}
}

func TestFormatCompletesSentence(t *testing.T) {
	testlog.Start(t)
	want := "$" + hrbBody + "*01"
	inputs := []string{
		hrbBody + "*01",
		"$" + hrbBody,
		hrbBody,
		"$" + hrbBody + "*01",
	}
	for _, in := range inputs {
		if got := Format(in, false); got != want {
			t.Fatalf("Format(%q) got=%q want=%q", in, got, want)
		}
	}
	if got := Format("RBHRB,Test", false); got != "$RBHRB,Test*52" {
		t.Fatalf("unexpected format: %q", got)
	}
}

func TestFormatTerminator(t *testing.T) {
	testlog.Start(t)
	got := Format("RBHRB,Test", true)
	if got != "$RBHRB,Test*52\r\n" {
		t.Fatalf("expected CRLF terminated sentence, got %q", got)
	}
	if again := Format(got, true); again != got {
		t.Fatalf("format not idempotent: %q != %q", again, got)
	}
	if plain := Format(got, false); plain != "$RBHRB,Test*52" {
		t.Fatalf("expected terminator dropped, got %q", plain)
	}
}

func TestFormatShape(t *testing.T) {
	testlog.Start(t)
	for _, body := range []string{"RBHRB,Test", "GPGGA,1", "RBHRB,a,,b", "TXERR,x"} {
		out := Format(body, false)
		if !strings.HasPrefix(out, "$") {
			t.Fatalf("missing $: %q", out)
		}
		if strings.Count(out, "*") != 1 {
			t.Fatalf("expected exactly one *: %q", out)
		}
		star := strings.IndexByte(out, '*')
		if out[star+1:] != Checksum(out[1:star]) {
			t.Fatalf("checksum suffix mismatch: %q", out)
		}
	}
}

func TestParseStrict(t *testing.T) {
	testlog.Start(t)
	s, err := Parse("$"+hrbBody+"*01", true)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.Talker != "RB" || s.Type != "HRB" || s.ID != "RBHRB" {
		t.Fatalf("unexpected ids: talker=%q type=%q id=%q", s.Talker, s.Type, s.ID)
	}
	want := []string{"101218", "161229", "21.31198", "N", "157.88972", "W", "AUVSI", "2"}
	if diff := cmp.Diff(want, s.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
	if s.Checksum != "01" {
		t.Fatalf("unexpected checksum: %q", s.Checksum)
	}
}

func TestParseLaxWithoutChecksum(t *testing.T) {
	testlog.Start(t)
	s, err := Parse("$"+hrbBody, false)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.ID != "RBHRB" || len(s.Data) != 8 || s.Data[7] != "2" {
		t.Fatalf("unexpected sentence: %+v", s)
	}
	if s.Checksum != "" {
		t.Fatalf("expected no checksum, got %q", s.Checksum)
	}
}

func TestParseStrictMissingChecksum(t *testing.T) {
	testlog.Start(t)
	_, err := Parse("$"+hrbBody, true)
	var ce *ChecksumError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ChecksumError, got %v", err)
	}
	if ce.Received != "" || ce.Expected != "01" {
		t.Fatalf("unexpected checksum error: %+v", ce)
	}
	if !errors.Is(err, ErrChecksum) || !errors.Is(err, ErrInvalidSentence) {
		t.Fatalf("expected checksum error chain, got %v", err)
	}
}

func TestParseBadChecksum(t *testing.T) {
	testlog.Start(t)
	_, err := Parse("$RBHRB,Test*28", true)
	var ce *ChecksumError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ChecksumError, got %v", err)
	}
	if ce.Received != "28" || ce.Expected != "52" {
		t.Fatalf("unexpected checksum error: %+v", ce)
	}
	if _, err := Parse("$RBHRB,Test*28", false); err != nil {
		t.Fatalf("lax parse should ignore checksum mismatch: %v", err)
	}
}

func TestParseOneField(t *testing.T) {
	testlog.Start(t)
	s, err := Parse("$RBHRB,Test*52", true)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diff := cmp.Diff([]string{"Test"}, s.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestParseNormalizesCaseAndChecksumHex(t *testing.T) {
	testlog.Start(t)
	body := "rbhrb,Test"
	sum := strings.ToLower(Checksum(body))
	s, err := Parse("$"+body+"*"+sum+"\r\n", true)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.Talker != "RB" || s.Type != "HRB" || s.ID != "RBHRB" {
		t.Fatalf("expected upper-case ids, got %+v", s)
	}
	if s.Checksum != strings.ToUpper(sum) {
		t.Fatalf("expected upper-case checksum, got %q", s.Checksum)
	}
}

func TestParsePreservesEmptyFields(t *testing.T) {
	testlog.Start(t)
	s, err := Parse(Format("RBHRB,a,,b", false), true)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "", "b"}, s.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
	empty, err := Parse("RBHRB,", false)
	if err != nil {
		t.Fatalf("parse empty payload: %v", err)
	}
	if diff := cmp.Diff([]string{""}, empty.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSkipsLeadingGarbage(t *testing.T) {
	testlog.Start(t)
	s, err := Parse("noise $RBHRB,Test*52", true)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.ID != "RBHRB" {
		t.Fatalf("unexpected id: %q", s.ID)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	testlog.Start(t)
	for _, in := range []string{"", "hello", "$RB,Test", "$RBHRBTest*00"} {
		_, err := Parse(in, false)
		if !errors.Is(err, ErrParse) {
			t.Fatalf("Parse(%q) expected ErrParse, got %v", in, err)
		}
		if !errors.Is(err, ErrInvalidSentence) {
			t.Fatalf("Parse(%q) expected ErrInvalidSentence, got %v", in, err)
		}
	}
}

func TestFormatParseAgreesWithLaxParse(t *testing.T) {
	testlog.Start(t)
	for _, body := range []string{hrbBody, "RBHRB,Test", "gpgga,1", "RBHRB,a,,b", "RBHRB,"} {
		strict, err := Parse(Format(body, true), true)
		if err != nil {
			t.Fatalf("strict parse of formatted %q: %v", body, err)
		}
		lax, err := Parse(body, false)
		if err != nil {
			t.Fatalf("lax parse of %q: %v", body, err)
		}
		if strict.Talker != lax.Talker || strict.Type != lax.Type {
			t.Fatalf("id mismatch for %q: %+v vs %+v", body, strict, lax)
		}
		if diff := cmp.Diff(lax.Data, strict.Data); diff != "" {
			t.Fatalf("data mismatch for %q (-lax +strict):\n%s", body, diff)
		}
	}
}

func TestSentenceBodyAndField(t *testing.T) {
	testlog.Start(t)
	s, err := Parse("$"+hrbBody+"*01", true)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.Body() != hrbBody {
		t.Fatalf("unexpected body: %q", s.Body())
	}
	if s.Field(6) != "AUVSI" || s.Field(99) != "" || s.Field(-1) != "" {
		t.Fatalf("unexpected field access")
	}
}

func TestEncodeWritesTerminatedSentence(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	if err := Encode(&buf, "TXHRB,Success"); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if buf.String() != "$TXHRB,Success*3B\r\n" {
		t.Fatalf("unexpected encoded sentence: %q", buf.String())
	}
}
