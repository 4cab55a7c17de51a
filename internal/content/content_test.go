package content

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text unchanged", "Call me at 9876543210", "Call me at 9876543210"},
		{"ampersand survives", "Tom & Jerry", "Tom & Jerry"},
		{"full-width digits", "\uff19\uff18\uff17\uff16\uff15\uff14\uff13\uff12\uff11\uff10", "9876543210"},
		{"zero-width space removed", "john\u200b@example.com", "john@example.com"},
		{"html stripped", "<p>Mail <b>a@b.com</b> &amp; me</p>", "Mail a@b.com & me"},
		{"newlines kept", "line one\nline two", "line one\nline two"},
		{"angle-bracket email kept", "Contact John Smith <john@example.com>", "Contact John Smith <john@example.com>"},
		{"comparison kept", "3 < 5 and 7 > 2", "3 < 5 and 7 > 2"},
		{"email inside html kept", "<p>Write to <jane@example.org></p>", "Write to <jane@example.org>"},
		{"br element stripped", "one<br/>two<BR>three", "onetwothree"},
		{"unknown tag is text", "<john> said hi", "<john> said hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeText(tt.in))
		})
	}
}

func TestIsBlank(t *testing.T) {
	assert.True(t, IsBlank(""))
	assert.True(t, IsBlank(" \n\t "))
	assert.False(t, IsBlank(" a "))
}

func TestDecodeImage(t *testing.T) {
	ctx := context.Background()
	d := NewImageDecoder(1)
	b64 := base64.StdEncoding.EncodeToString(pngHeader)

	t.Run("data URL", func(t *testing.T) {
		img, ct, err := d.Decode(ctx, "data:image/png;base64,"+b64)
		require.NoError(t, err)
		assert.Equal(t, pngHeader, img)
		assert.Equal(t, "image/png", ct)
	})

	t.Run("bare base64", func(t *testing.T) {
		_, ct, err := d.Decode(ctx, b64)
		require.NoError(t, err)
		assert.Equal(t, "image/png", ct)
	})

	t.Run("not base64", func(t *testing.T) {
		_, _, err := d.Decode(ctx, "%%%")
		assert.ErrorIs(t, err, ErrInvalidImage)
	})

	t.Run("data URL without base64 marker", func(t *testing.T) {
		_, _, err := d.Decode(ctx, "data:image/png,abc")
		assert.ErrorIs(t, err, ErrInvalidImage)
	})

	t.Run("not an image", func(t *testing.T) {
		_, _, err := d.Decode(ctx, base64.StdEncoding.EncodeToString([]byte("hello world")))
		assert.ErrorIs(t, err, ErrUnsupportedImage)
	})

	t.Run("too large", func(t *testing.T) {
		big := make([]byte, 2*1024*1024)
		copy(big, pngHeader)
		_, _, err := d.Decode(ctx, base64.StdEncoding.EncodeToString(big))
		assert.ErrorIs(t, err, ErrImageTooLarge)
	})
}

func TestReadFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "post.png")
	require.NoError(t, os.WriteFile(path, pngHeader, 0o600))

	img, ct, err := NewImageDecoder(1).ReadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, img)
	assert.Equal(t, "image/png", ct)

	_, _, err = NewImageDecoder(1).ReadFile(ctx, filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}
