package session

import (
	"crypto/rand"
	"math/big"
	mrand "math/rand/v2"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/vango-dev/scenesync/pkg/protocol"
)

// CodeAlphabet is the set of characters session codes are drawn from.
const CodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// DefaultCodeLength is the length of generated session codes.
const DefaultCodeLength = 6

// GenerateCode returns a random session code of length n drawn from
// CodeAlphabet. Non-positive n uses DefaultCodeLength.
func GenerateCode(n int) (string, error) {
	if n <= 0 {
		n = DefaultCodeLength
	}
	limit := big.NewInt(int64(len(CodeAlphabet)))
	code := make([]byte, n)
	for i := range code {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		code[i] = CodeAlphabet[idx.Int64()]
	}
	return string(code), nil
}

// ValidCode reports whether code is non-empty and uses only CodeAlphabet.
func ValidCode(code string) bool {
	if code == "" {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !('0' <= c && c <= '9' || 'A' <= c && c <= 'Z' || 'a' <= c && c <= 'z') {
			return false
		}
	}
	return true
}

// RandomColor returns a random peer color with any hue and saturation
// and a value of at least 0.7, so colors stay visible on dark scenes.
func RandomColor() protocol.Color {
	c := colorful.Hsv(mrand.Float64()*360, mrand.Float64(), 0.7+mrand.Float64()*0.3)
	c = c.Clamped()
	return protocol.Color{c.R, c.G, c.B}
}
