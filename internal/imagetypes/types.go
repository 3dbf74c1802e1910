package imagetypes

import (
	"path/filepath"
	"strings"

	// Register the webp decoder so image.Decode and imaging.Open can
	// handle .webp files alongside the formats imaging registers itself.
	_ "golang.org/x/image/webp"
)

// Mode classifies the content of a decoded annotation.
type Mode string

const (
	// ModeEmpty means the annotation has no description and no labels.
	ModeEmpty Mode = "empty"
	// ModeDescription means the annotation has only a free-text description.
	ModeDescription Mode = "description"
	// ModeLabel means the annotation has only labels.
	ModeLabel Mode = "label"
	// ModeMixed means the annotation has both a description and labels.
	ModeMixed Mode = "mixed"
)

// ImageExtensions maps file extensions to whether they are supported image formats.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".tiff": true,
	".tif":  true,
	".webp": true,
}

// ReservedFilenames lists JSON files in the working directory that are
// bookkeeping files rather than per-image sidecars.
var ReservedFilenames = map[string]bool{
	"labels.json":       true,
	"labels_cache.json": true,
	"keys_setting.json": true,
}

// IsImageFile reports whether the filename has a supported image extension.
func IsImageFile(name string) bool {
	return ImageExtensions[strings.ToLower(filepath.Ext(name))]
}

// IsSidecarFile reports whether the filename is a per-image annotation
// sidecar, i.e. a .json file that is not one of the reserved bookkeeping
// files.
func IsSidecarFile(name string) bool {
	if strings.ToLower(filepath.Ext(name)) != ".json" {
		return false
	}
	return !ReservedFilenames[name]
}

// BaseName returns the filename without its extension.
func BaseName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// SidecarName returns the sidecar filename for an image filename.
func SidecarName(imageName string) string {
	return BaseName(imageName) + ".json"
}
