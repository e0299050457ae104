// Package keycodec converts 64-bit numeric keys to fixed-width string tokens
// and back.
//
// A token is a caller-chosen prefix followed by exactly TokenWidth symbols.
// Each symbol carries five bits of the key, most significant first, so the
// first symbol only ever carries the top four bits. Only the first 32 symbols
// of Alphabet are addressable by a five-bit index.
package keycodec

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// Alphabet lists the symbol table. Only Alphabet[:32] is used.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

	// TokenWidth is the number of symbols after the prefix.
	TokenWidth = 13

	bitsPerSymbol = 5
	symbolMask    = 1<<bitsPerSymbol - 1
)

// ErrInvalidToken is returned (wrapped) for every token Decode rejects.
var ErrInvalidToken = errors.New("invalid key token")

var symbolIndex = func() [256]int8 {
	var idx [256]int8
	for i := range idx {
		idx[i] = -1
	}
	for i := 0; i <= symbolMask; i++ {
		idx[Alphabet[i]] = int8(i)
	}
	return idx
}()

// Encode renders id as prefix followed by TokenWidth symbols.
func Encode(prefix string, id uint64) string {
	var b strings.Builder
	b.Grow(len(prefix) + TokenWidth)
	b.WriteString(prefix)
	for i := TokenWidth - 1; i >= 0; i-- {
		b.WriteByte(Alphabet[(id>>(uint(i)*bitsPerSymbol))&symbolMask])
	}
	return b.String()
}

// Decode reverses Encode. It fails when the prefix does not match, when the
// remainder is not exactly TokenWidth symbols, when a symbol is outside the
// addressable alphabet, or when the leading symbol would overflow 64 bits.
func Decode(prefix, token string) (uint64, error) {
	if !strings.HasPrefix(token, prefix) {
		return 0, fmt.Errorf("%w: %q does not start with %q", ErrInvalidToken, token, prefix)
	}
	body := token[len(prefix):]
	if len(body) != TokenWidth {
		return 0, fmt.Errorf("%w: %q has %d symbols, want %d", ErrInvalidToken, token, len(body), TokenWidth)
	}

	var id uint64
	for i := 0; i < len(body); i++ {
		v := symbolIndex[body[i]]
		if v < 0 {
			return 0, fmt.Errorf("%w: %q has symbol %q outside the alphabet", ErrInvalidToken, token, body[i])
		}
		// 13*5 = 65 bits; the top symbol may only use its low four bits.
		if i == 0 && v > symbolMask>>1 {
			return 0, fmt.Errorf("%w: %q overflows 64 bits", ErrInvalidToken, token)
		}
		id = id<<bitsPerSymbol | uint64(v)
	}
	return id, nil
}
