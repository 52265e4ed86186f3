package qrimage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"service-queue/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestPNG(t *testing.T) {
	png, err := PNG("https://queue.example.com/join?token=abc", 0)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngMagic))

	_, err = PNG("", 128)
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestJoinTokenPNG_FallsBackToPayload(t *testing.T) {
	png, err := JoinTokenPNG(models.JoinToken{Payload: "header.claims.sig"}, 128)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngMagic))

	_, err = JoinTokenPNG(models.JoinToken{}, 128)
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "join.png")

	err := WriteFile(path, models.JoinToken{JoinURL: "https://queue.example.com/join?token=abc"}, 128)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, pngMagic))
}
