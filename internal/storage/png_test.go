package storage

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestPNG_EncodeDecode(t *testing.T) {
	tests := []string{"", "a", "ab", "abc", "abcd", "hello, world", "ünïcødé", "a\x00b", "\x00\x00\x00", "trailing\x00"}

	for _, value := range tests {
		t.Run(value, func(t *testing.T) {
			data, err := EncodePNG(value)
			if err != nil {
				t.Fatalf("EncodePNG() error = %v", err)
			}
			got, err := DecodePNG(data)
			if err != nil {
				t.Fatalf("DecodePNG() error = %v", err)
			}
			if got != value {
				t.Errorf("DecodePNG() = %q, want %q", got, value)
			}
		})
	}
}

func TestPNG_DecodeGarbage(t *testing.T) {
	if _, err := DecodePNG([]byte("not a png")); err == nil {
		t.Error("expected error")
	}
}

func TestPNG_DecodeBadLength(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 0, G: 0, B: 9, A: 0xff})
	img.SetNRGBA(1, 0, color.NRGBA{R: 'a', G: 'b', B: 'c', A: 0xff})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if _, err := DecodePNG(buf.Bytes()); err == nil {
		t.Error("expected error for length beyond pixel data")
	}
}

func TestPNGStore_FileLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := NewPNGStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Write(context.Background(), "a/b", "v"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a%2Fb.png")); err != nil {
		t.Errorf("expected escaped file name: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "bad.png"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Read(context.Background(), "bad"); err == nil {
		t.Error("expected decode error for corrupt file")
	}
}
