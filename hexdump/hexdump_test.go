package hexdump

import (
	"strings"
	"testing"
)

func TestDumpEmpty(t *testing.T) {
	if got := Dump(nil); got != "" {
		t.Fatalf("expected empty dump, got %q", got)
	}
}

func TestDumpPartialLine(t *testing.T) {
	got := Dump([]byte("Hello, USB!"))
	want := "0000  48 65 6c 6c 6f 2c 20 55  53 42 21" +
		strings.Repeat(" ", 16) + " |Hello, USB!|"
	if got != want {
		t.Fatalf("dump mismatch:\ngot  %q\nwant %q", got, want)
	}
}

func TestDumpFullLine(t *testing.T) {
	p := make([]byte, 16)
	for i := range p {
		p[i] = byte(i)
	}
	got := Dump(p)
	want := "0000  00 01 02 03 04 05 06 07  08 09 0a 0b 0c 0d 0e 0f  |................|"
	if got != want {
		t.Fatalf("dump mismatch:\ngot  %q\nwant %q", got, want)
	}
}

func TestDumpMultipleLines(t *testing.T) {
	p := make([]byte, 17)
	for i := range p {
		p[i] = byte(i)
	}
	got := Dump(p)
	lines := strings.Split(got, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[1], "0010  10 ") {
		t.Fatalf("second line offset wrong: %q", lines[1])
	}
	if !strings.HasSuffix(lines[1], "|.|") {
		t.Fatalf("second line ascii column wrong: %q", lines[1])
	}
}

func TestDumpNonPrintable(t *testing.T) {
	got := Dump([]byte{0x41, 0x00, 0x7F, 0x42})
	if !strings.HasSuffix(got, "|A..B|") {
		t.Fatalf("ascii column mismatch: %q", got)
	}
}
