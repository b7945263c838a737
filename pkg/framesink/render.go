package framesink

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Renderer turns a payload into the text shown on a log line.
type Renderer interface {
	Render(p []byte) string
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(p []byte) string

func (f RendererFunc) Render(p []byte) string {
	return f(p)
}

var (
	// TextRenderer prints the payload as text, escaping control characters
	// so one payload always stays on one line.
	TextRenderer Renderer = RendererFunc(renderText)

	// HexRenderer prints the payload as space-separated hex bytes.
	HexRenderer Renderer = RendererFunc(renderHex)

	// AutoRenderer uses HexRenderer for binary payloads and TextRenderer
	// otherwise.
	AutoRenderer Renderer = RendererFunc(func(p []byte) string {
		if IsBinary(p) {
			return renderHex(p)
		}
		return renderText(p)
	})
)

// IsBinary reports whether p looks like binary data: it contains a null
// byte, or more than 30% of it is non-printable. ESC and common whitespace
// count as printable because terminal output is full of them.
func IsBinary(p []byte) bool {
	if len(p) == 0 {
		return false
	}

	nonPrintable := 0
	for i := 0; i < len(p); {
		r, size := utf8.DecodeRune(p[i:])
		i += size
		switch {
		case r == 0:
			return true
		case r == utf8.RuneError && size == 1:
			nonPrintable++
		case r < 32 && r != '\t' && r != '\n' && r != '\r' && r != 0x1B:
			nonPrintable++
		case r > 126 && r < 160:
			nonPrintable++
		}
	}
	return float64(nonPrintable) > float64(len(p))*0.3
}

func renderText(p []byte) string {
	var sb strings.Builder
	sb.Grow(len(p))
	for i := 0; i < len(p); {
		r, size := utf8.DecodeRune(p[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			fmt.Fprintf(&sb, `\x%02x`, p[i])
		case r == '\r':
			sb.WriteString(`\r`)
		case r == '\n':
			sb.WriteString(`\n`)
		case r == '\t':
			sb.WriteString(`\t`)
		case r == '\\':
			sb.WriteString(`\\`)
		case r < 32 || r == 127:
			fmt.Fprintf(&sb, `\x%02x`, r)
		default:
			sb.WriteRune(r)
		}
		i += size
	}
	return sb.String()
}

func renderHex(p []byte) string {
	return fmt.Sprintf("% x", p)
}
