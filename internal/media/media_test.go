package media

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/boreal-chat/boreal/internal/models"
)

func createTestImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

func TestIsSupportedContentType(t *testing.T) {
	tests := []struct {
		ct   string
		want bool
	}{
		{"image/png", true},
		{"image/jpeg", true},
		{"image/gif", true},
		{"image/webp", true},
		{"IMAGE/PNG", true},
		{"  image/png  ", true},
		{"video/mp4", false},
		{"application/json", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsSupportedContentType(tt.ct); got != tt.want {
			t.Errorf("IsSupportedContentType(%q) = %v, want %v", tt.ct, got, tt.want)
		}
	}
}

func TestObjectKey(t *testing.T) {
	userID := models.NewULID()
	got := objectKey(userID, "deadbeef", "png")
	want := "avatars/" + userID.String() + "/deadbeef.png"
	if got != want {
		t.Errorf("objectKey = %q, want %q", got, want)
	}
}

func TestComputeBlurhash(t *testing.T) {
	img := createTestImage(200, 150)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}

	hash, err := computeBlurhash(buf.Bytes())
	if err != nil {
		t.Fatalf("computeBlurhash: %v", err)
	}
	if hash == "" {
		t.Fatal("expected non-empty blurhash")
	}

	hash2, err := computeBlurhash(buf.Bytes())
	if err != nil {
		t.Fatalf("computeBlurhash (second call): %v", err)
	}
	if hash != hash2 {
		t.Errorf("blurhash not deterministic: %q != %q", hash, hash2)
	}
}

func TestComputeBlurhash_InvalidData(t *testing.T) {
	if _, err := computeBlurhash([]byte("not an image")); err == nil {
		t.Fatal("expected error decoding non-image data")
	}
}
