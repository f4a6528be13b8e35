package qr

import (
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// PNG renders content as a square PNG of size pixels.
func PNG(content string, size int) ([]byte, error) {
	return qrcode.Encode(content, qrcode.Medium, size)
}

// Text renders content with half-block characters, two modules per line,
// so it can be scanned straight from a terminal.
func Text(content string) (string, error) {
	code, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return "", err
	}
	code.DisableBorder = true
	bmp := code.Bitmap()
	if len(bmp)%2 == 1 {
		width := 0
		if len(bmp) > 0 {
			width = len(bmp[0])
		}
		bmp = append(bmp, make([]bool, width))
	}

	var out strings.Builder
	for y := 0; y < len(bmp); y += 2 {
		top, bottom := bmp[y], bmp[y+1]
		for x := range top {
			switch {
			case top[x] && bottom[x]:
				out.WriteRune('█')
			case top[x]:
				out.WriteRune('▀')
			case bottom[x]:
				out.WriteRune('▄')
			default:
				out.WriteRune(' ')
			}
		}
		out.WriteByte('\n')
	}
	return out.String(), nil
}
