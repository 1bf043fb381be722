// Package hexdump renders packet payloads in the classic 16-bytes-per-line
// layout consumed by external viewers: offset prefix, space-separated hex
// pairs, and a printable-ASCII column.
package hexdump

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

const bytesPerLine = 16

// Dump renders p as a multi-line hex dump. The result carries no
// trailing newline; an empty input yields an empty string.
func Dump(p []byte) string {
	if len(p) == 0 {
		return ""
	}
	lines := lo.Map(lo.Chunk(p, bytesPerLine), func(chunk []byte, i int) string {
		return line(uint(i*bytesPerLine), chunk)
	})
	return strings.Join(lines, "\n")
}

func line(offset uint, chunk []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%04x  ", offset)

	for i := 0; i < bytesPerLine; i++ {
		if i == bytesPerLine/2 {
			b.WriteByte(' ')
		}
		if i < len(chunk) {
			fmt.Fprintf(&b, "%02x ", chunk[i])
		} else {
			b.WriteString("   ")
		}
	}

	b.WriteString(" |")
	for _, c := range chunk {
		if c >= 0x20 && c < 0x7F {
			b.WriteByte(c)
		} else {
			b.WriteByte('.')
		}
	}
	b.WriteByte('|')
	return b.String()
}
