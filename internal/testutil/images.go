// Package testutil builds image payloads for tests.
package testutil

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func noise(size int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}
	return img
}

// SampleJPEG returns a noisy 128x128 JPEG well inside the accepted size range.
func SampleJPEG(tb testing.TB) []byte {
	tb.Helper()
	var buf bytes.Buffer
	require.NoError(tb, jpeg.Encode(&buf, noise(128, 1), &jpeg.Options{Quality: 90}))
	require.Greater(tb, buf.Len(), 4096)
	require.Less(tb, buf.Len(), 150*1024)
	return buf.Bytes()
}

// TinyJPEG returns a valid JPEG far below 4KB.
func TinyJPEG(tb testing.TB) []byte {
	tb.Helper()
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	require.NoError(tb, jpeg.Encode(&buf, img, nil))
	require.Less(tb, buf.Len(), 4096)
	return buf.Bytes()
}

// PaddedJPEG returns a valid JPEG header padded with zero bytes to exactly n
// bytes. Decoders stop at the frame header, so the padding is never read.
func PaddedJPEG(tb testing.TB, n int) []byte {
	tb.Helper()
	data := TinyJPEG(tb)
	require.LessOrEqual(tb, len(data), n)
	return append(data, make([]byte, n-len(data))...)
}

// SamplePNG returns a noisy PNG inside the accepted size range.
func SamplePNG(tb testing.TB) []byte {
	tb.Helper()
	var buf bytes.Buffer
	require.NoError(tb, png.Encode(&buf, noise(64, 2)))
	require.Greater(tb, buf.Len(), 4096)
	require.Less(tb, buf.Len(), 150*1024)
	return buf.Bytes()
}

// Base64 encodes data with standard padding.
func Base64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
