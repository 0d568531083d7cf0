package imagesource

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Origin records how an image entered the workflow. Only camera captures are
// temporary files owned by the application.
type Origin string

const (
	OriginCamera  Origin = "camera"
	OriginLibrary Origin = "library"
	OriginUpload  Origin = "upload"
)

// LocatorPrefix marks library items that have no direct file path.
const LocatorPrefix = "library:"

var ErrNoImage = errors.New("image asset has neither path nor locator")

// ImageAsset references image bytes either by a direct file path or by an
// opaque locator into the photo library.
type ImageAsset struct {
	Path    string
	Locator string
	Name    string
	Origin  Origin

	// Width and Height are filled in once the bounds have been probed.
	Width  int
	Height int

	fsys fs.FS
}

// Record is the serialisable form of an asset, used by session stores.
type Record struct {
	Path    string `json:"path,omitempty"`
	Locator string `json:"locator,omitempty"`
	Name    string `json:"name"`
	Origin  Origin `json:"origin"`
}

func NewFileAsset(filePath string, origin Origin) *ImageAsset {
	return &ImageAsset{
		Path:   filePath,
		Name:   filepath.Base(filePath),
		Origin: origin,
	}
}

func newLocatorAsset(fsys fs.FS, name string) *ImageAsset {
	return &ImageAsset{
		Locator: LocatorPrefix + name,
		Name:    path.Base(name),
		Origin:  OriginLibrary,
		fsys:    fsys,
	}
}

// Open returns a reader over the image bytes.
func (a *ImageAsset) Open() (io.ReadCloser, error) {
	if a.Path != "" {
		return os.Open(a.Path)
	}
	if a.Locator != "" && a.fsys != nil {
		return a.fsys.Open(strings.TrimPrefix(a.Locator, LocatorPrefix))
	}
	return nil, ErrNoImage
}

// Exists reports whether the referenced bytes are still reachable.
func (a *ImageAsset) Exists() bool {
	if a.Path != "" {
		info, err := os.Stat(a.Path)
		return err == nil && !info.IsDir()
	}
	if a.Locator != "" && a.fsys != nil {
		info, err := fs.Stat(a.fsys, strings.TrimPrefix(a.Locator, LocatorPrefix))
		return err == nil && !info.IsDir()
	}
	return false
}

// Extension returns the lowercase file extension without the leading dot.
func (a *ImageAsset) Extension() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(a.Name)), ".")
}

// Remove deletes the backing file. Only assets with a direct path can be
// removed; library locators are left untouched.
func (a *ImageAsset) Remove() error {
	if a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (a *ImageAsset) Record() Record {
	return Record{
		Path:    a.Path,
		Locator: a.Locator,
		Name:    a.Name,
		Origin:  a.Origin,
	}
}
