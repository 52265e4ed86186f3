package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// GenerateCode returns 2n uppercase hex characters.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)

	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// GenerateTicketCode returns a short code printed on kiosk tickets, e.g. "A3F9C1".
func GenerateTicketCode() string {
	code, err := GenerateCode(3)
	if err != nil {
		return "000000"
	}
	return code
}
