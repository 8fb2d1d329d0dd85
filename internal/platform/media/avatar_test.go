package media

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
)

func TestNormalizeAvatarSquaresAndClips(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 300, 120))
	for x := 0; x < 300; x++ {
		for y := 0; y < 120; y++ {
			src.Set(x, y, color.RGBA{G: 200, A: 255})
		}
	}
	var in bytes.Buffer
	if err := jpeg.Encode(&in, src, nil); err != nil {
		t.Fatalf("encode: %v", err)
	}

	out, err := NormalizeAvatar(&in, 64)
	if err != nil {
		t.Fatalf("NormalizeAvatar: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("result is not png: %v", err)
	}
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 64 {
		t.Fatalf("size: got %v", img.Bounds())
	}
	if _, _, _, a := img.At(0, 0).RGBA(); a != 0 {
		t.Fatalf("corner should be transparent, alpha=%d", a)
	}
	if _, g, _, a := img.At(32, 32).RGBA(); a == 0 || g == 0 {
		t.Fatalf("center should be opaque green")
	}
}

func TestNormalizeAvatarRejectsGarbage(t *testing.T) {
	if _, err := NormalizeAvatar(strings.NewReader("hello"), 0); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestNormalizeAvatarRejectsOversize(t *testing.T) {
	big := bytes.Repeat([]byte{0}, MaxUploadBytes+1)
	if _, err := NormalizeAvatar(bytes.NewReader(big), 0); err != ErrTooLarge {
		t.Fatalf("want ErrTooLarge, got %v", err)
	}
}
