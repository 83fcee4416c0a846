package code

import (
	"crypto/rand"
)

const (
	alphabet = "abcdefghijklmnopqrstuvwxyz"
	// Length of a room code including the hyphen.
	Length = 7
	// byte values at or above this are rejected to keep the draw uniform over 26 letters
	rejectAbove = 256 - 256%len(alphabet)
)

// Generate returns a random room code shaped `lll-lll`.
// Collision handling belongs to the caller.
func Generate() string {
	buf := make([]byte, Length)
	buf[3] = '-'

	pool := make([]byte, 16)
	pos := len(pool)
	for i := 0; i < Length; i++ {
		if i == 3 {
			continue
		}
		for {
			if pos == len(pool) {
				// crypto/rand.Read never returns an error on supported platforms
				_, _ = rand.Read(pool)
				pos = 0
			}
			b := pool[pos]
			pos++
			if int(b) < rejectAbove {
				buf[i] = alphabet[int(b)%len(alphabet)]
				break
			}
		}
	}
	return string(buf)
}

// ValidateFormat reports whether code is syntactically a room code.
// It never consults a store.
func ValidateFormat(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < Length; i++ {
		c := code[i]
		if i == 3 {
			if c != '-' {
				return false
			}
			continue
		}
		if c < 'a' || c > 'z' {
			return false
		}
	}
	return true
}
