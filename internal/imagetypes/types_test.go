package imagetypes

import "testing"

func TestIsImageFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"photo.jpg", true},
		{"photo.JPG", true},
		{"photo.jpeg", true},
		{"scan.tiff", true},
		{"scan.tif", true},
		{"pic.png", true},
		{"pic.webp", true},
		{"pic.bmp", true},
		{"clip.mp4", false},
		{"notes.txt", false},
		{"photo.json", false},
		{"noext", false},
	}

	for _, tt := range tests {
		if got := IsImageFile(tt.name); got != tt.want {
			t.Errorf("IsImageFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsSidecarFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"photo.json", true},
		{"IMG_000001.json", true},
		{"labels.json", false},
		{"labels_cache.json", false},
		{"keys_setting.json", false},
		{"photo.jpg", false},
	}

	for _, tt := range tests {
		if got := IsSidecarFile(tt.name); got != tt.want {
			t.Errorf("IsSidecarFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSidecarName(t *testing.T) {
	if got := SidecarName("photo_01.jpg"); got != "photo_01.json" {
		t.Errorf("expected photo_01.json, got %s", got)
	}
	if got := BaseName("archive.tar.gz"); got != "archive.tar" {
		t.Errorf("expected archive.tar, got %s", got)
	}
}
