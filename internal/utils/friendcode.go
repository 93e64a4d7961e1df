package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const friendCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// FriendCodeLength is the fixed length of the human-shareable user handle.
const FriendCodeLength = 8

// GenerateFriendCode returns an 8-character uppercase alphanumeric code.
// Uniqueness is enforced by the caller against the user table.
func GenerateFriendCode() (string, error) {
	buf := make([]byte, FriendCodeLength)
	max := big.NewInt(int64(len(friendCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("friend code entropy: %w", err)
		}
		buf[i] = friendCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
