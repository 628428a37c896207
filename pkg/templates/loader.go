package templates

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"

	"jordanella.com/autoclick-go/internal/cv"
)

var (
	ErrEmptyImage = errors.New("template image has zero area")
	ErrNotFound   = errors.New("template image not found")
)

// Template is a decoded reference image. Image is read-only once loaded.
type Template struct {
	Name   string
	Path   string
	Image  *image.RGBA
	Width  int
	Height int
}

// Warning describes a template path that was skipped during loading
type Warning struct {
	Path string
	Err  error
}

func (w Warning) Error() string {
	return fmt.Sprintf("%s: %v", w.Path, w.Err)
}

func (w Warning) Unwrap() error {
	return w.Err
}

// Load decodes every path in order. Paths that cannot be read or decoded are
// reported as warnings and skipped; the remaining templates keep their order.
func Load(paths []string) ([]Template, []Warning) {
	loaded := make([]Template, 0, len(paths))
	var warnings []Warning

	for _, path := range paths {
		tmpl, err := LoadFile(path)
		if err != nil {
			warnings = append(warnings, Warning{Path: path, Err: err})
			continue
		}
		loaded = append(loaded, tmpl)
	}

	return loaded, warnings
}

// LoadFile decodes a single template image
func LoadFile(path string) (Template, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Template{}, ErrNotFound
		}
		return Template{}, fmt.Errorf("failed to open template: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return Template{}, fmt.Errorf("failed to decode template: %w", err)
	}

	return FromImage(nameFor(path), path, img)
}

// FromImage builds a template from an already decoded image
func FromImage(name, path string, img image.Image) (Template, error) {
	if img == nil || img.Bounds().Empty() {
		return Template{}, ErrEmptyImage
	}

	rgba := cv.Opaque(img)
	return Template{
		Name:   name,
		Path:   path,
		Image:  rgba,
		Width:  rgba.Rect.Dx(),
		Height: rgba.Rect.Dy(),
	}, nil
}

func nameFor(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
