// Package qrimage renders join tokens as QR code images for kiosks and
// printed signage.
package qrimage

import (
	"errors"
	"fmt"
	"os"

	"service-queue/models"

	"github.com/skip2/go-qrcode"
)

const DefaultSize = 256

var ErrEmptyContent = errors.New("qrimage: empty content")

// PNG encodes content as a PNG QR code of size x size pixels.
func PNG(content string, size int) ([]byte, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}

// JoinTokenPNG renders the join URL of token, which is what a phone camera
// should open.
func JoinTokenPNG(token models.JoinToken, size int) ([]byte, error) {
	content := token.JoinURL
	if content == "" {
		content = token.Payload
	}
	return PNG(content, size)
}

func WriteFile(path string, token models.JoinToken, size int) error {
	png, err := JoinTokenPNG(token, size)
	if err != nil {
		return err
	}
	return os.WriteFile(path, png, 0o644)
}
