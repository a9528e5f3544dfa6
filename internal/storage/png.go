package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
)

// PNGStore stores each value in the pixels of a PNG file, three bytes per
// pixel in the red, green and blue channels. The first pixel holds the
// value length.
type PNGStore struct {
	dir string
}

// NewPNGStore creates the directory for PNG files if needed.
func NewPNGStore(dir string) (*PNGStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create png dir: %w", err)
	}
	return &PNGStore{dir: dir}, nil
}

func (s *PNGStore) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+".png")
}

func (s *PNGStore) Read(ctx context.Context, key string) (string, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read png: %w", err)
	}

	value, err := DecodePNG(data)
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *PNGStore) Write(ctx context.Context, key, value string) error {
	data, err := EncodePNG(value)
	if err != nil {
		return err
	}

	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		return fmt.Errorf("rename png: %w", err)
	}
	return nil
}

// maxPNGValue is the largest length the 24-bit header pixel can hold.
const maxPNGValue = 1<<24 - 1

// EncodePNG packs value into a one-row opaque RGBA image. The first pixel
// carries the byte length big-endian, the rest carry the bytes.
func EncodePNG(value string) ([]byte, error) {
	if len(value) > maxPNGValue {
		return nil, fmt.Errorf("encode png: value of %d bytes exceeds %d", len(value), maxPNGValue)
	}
	n := len(value)
	raw := append([]byte{byte(n >> 16), byte(n >> 8), byte(n)}, value...)
	width := (len(raw) + 2) / 3

	img := image.NewNRGBA(image.Rect(0, 0, width, 1))
	for x := 0; x < width; x++ {
		var px [3]byte
		copy(px[:], raw[min(3*x, len(raw)):min(3*x+3, len(raw))])
		img.SetNRGBA(x, 0, color.NRGBA{R: px[0], G: px[1], B: px[2], A: 0xff})
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePNG unpacks a value written by EncodePNG.
func DecodePNG(data []byte) (string, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode png: %w", err)
	}

	bounds := img.Bounds()
	raw := make([]byte, 0, bounds.Dx()*3)
	for x := bounds.Min.X; x < bounds.Max.X; x++ {
		c := color.NRGBAModel.Convert(img.At(x, bounds.Min.Y)).(color.NRGBA)
		raw = append(raw, c.R, c.G, c.B)
	}

	if len(raw) < 3 {
		return "", fmt.Errorf("decode png: missing length pixel")
	}
	n := int(raw[0])<<16 | int(raw[1])<<8 | int(raw[2])
	if n > len(raw)-3 {
		return "", fmt.Errorf("decode png: length %d exceeds %d pixel bytes", n, len(raw)-3)
	}
	return string(raw[3 : 3+n]), nil
}
