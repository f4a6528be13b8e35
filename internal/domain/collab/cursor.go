package collab

import "unicode/utf16"

// Palette is the fixed set of cursor colors. Peers compute colors
// independently, so order and length must not change.
var Palette = [8]string{
	"#FF6B6B",
	"#4ECDC4",
	"#45B7D1",
	"#96CEB4",
	"#FFEAA7",
	"#DDA0DD",
	"#98D8C8",
	"#F7DC6F",
}

// Cursor is the local projection of a remote participant's pointer.
type Cursor struct {
	UserID   string  `json:"userId"`
	UserName string  `json:"userName"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Color    string  `json:"color"`
}

// ColorFor returns the palette entry for userID. The hash is the sum of the
// UTF-16 code units of the id, matching what browser peers compute.
func ColorFor(userID string) string {
	var sum uint64
	for _, unit := range utf16.Encode([]rune(userID)) {
		sum += uint64(unit)
	}
	return Palette[sum%uint64(len(Palette))]
}
