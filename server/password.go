package main

import (
	"crypto/rand"
	"fmt"
)

// passwordAlphabet is the character set session passwords are drawn from:
// uppercase letters and digits (§6), chosen to be easy to read aloud or
// type on a projector.
const passwordAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const passwordLength = 4

// GenerateSessionPassword returns a random, case-sensitive password valid for
// the lifetime of one server process (§6). It is generated once at boot and
// never persisted.
func GenerateSessionPassword() (string, error) {
	buf := make([]byte, passwordLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session password: %w", err)
	}
	out := make([]byte, passwordLength)
	for i, b := range buf {
		out[i] = passwordAlphabet[int(b)%len(passwordAlphabet)]
	}
	return string(out), nil
}
