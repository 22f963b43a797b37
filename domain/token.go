package domain

import (
	"crypto/rand"
	"fmt"
)

const (
	noteAlphabet  = "abcdefghijklmnopqrstuvwxyz1234567890"
	keyAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"
	NoteLength    = 10
	MerchantKeyLn = 25
)

// NewNoteToken returns a short random token for the payment note field.
func NewNoteToken() (string, error) {
	return randomString(noteAlphabet, NoteLength)
}

// NewMerchantKey returns a fresh merchant authentication key.
func NewMerchantKey() (string, error) {
	return randomString(keyAlphabet, MerchantKeyLn)
}

func randomString(alphabet string, n int) (string, error) {
	// 256 is a multiple of 64 but not of 36; rejection sampling keeps the
	// note alphabet uniform.
	limit := 256 - 256%len(alphabet)
	buf := make([]byte, n)
	out := make([]byte, 0, n)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("could not read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
