package accesscode

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// codeAlphabet excludes visually ambiguous characters (I, L, O, 0, 1)
// so codes survive being read aloud or hand-copied.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// randomCode produces a candidate code of the given length from the
// restricted alphabet using crypto/rand.
func randomCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}

	var b strings.Builder
	b.Grow(length)
	for _, v := range buf {
		b.WriteByte(codeAlphabet[int(v)%len(codeAlphabet)])
	}
	return b.String(), nil
}

// acceptable rejects candidates that are error-prone to transcribe or
// easy to guess: three or more of the same character in a row, or a
// sequential run of three characters (ascending or descending).
func acceptable(code string) bool {
	return !hasRepeatedRun(code) && !hasSequentialRun(code)
}

func hasRepeatedRun(code string) bool {
	for i := 2; i < len(code); i++ {
		if code[i] == code[i-1] && code[i] == code[i-2] {
			return true
		}
	}
	return false
}

func hasSequentialRun(code string) bool {
	for i := 2; i < len(code); i++ {
		if code[i] == code[i-1]+1 && code[i-1] == code[i-2]+1 {
			return true
		}
		if code[i] == code[i-1]-1 && code[i-1] == code[i-2]-1 {
			return true
		}
	}
	return false
}

// validFormat checks length and character set without touching storage.
// Uppercase letters and digits are both accepted: codes issued before
// the alphabet was restricted were digit-only and remain valid.
func validFormat(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// maskCode returns a redacted form of an attempted code safe to write
// into audit details: first two characters, then asterisks.
func maskCode(code string) string {
	if len(code) <= 2 {
		return "**"
	}
	return code[:2] + strings.Repeat("*", len(code)-2)
}
