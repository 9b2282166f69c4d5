package service

import (
	"crypto/rand"
	"fmt"
)

// codeAlphabet avoids 0/O, 1/I/L and vowels so codes stay unambiguous when
// read aloud at the front desk.
const codeAlphabet = "23456789BCDFGHJKMNPQRSTVWXZ"

const codeLength = 10

// newRewardCode returns a short human-shareable code like "RW-K3ZQ8-M2NPT".
func newRewardCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate reward code: %w", err)
	}
	out := make([]byte, 0, codeLength+4)
	out = append(out, 'R', 'W', '-')
	for i, b := range buf {
		if i == codeLength/2 {
			out = append(out, '-')
		}
		out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
	}
	return string(out), nil
}
