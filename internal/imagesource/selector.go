package imagesource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrNoCamera         = errors.New("no camera available")
	ErrNoLibrary        = errors.New("no photo library available")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("image file does not exist")
	ErrUnsupportedImage = errors.New("unsupported image type")
)

// Capability names an access right the selector needs from the host.
type Capability string

const (
	CapabilityCamera  Capability = "camera"
	CapabilityLibrary Capability = "library"
)

// Grant is the answer to a capability request.
type Grant int

const (
	Granted Grant = iota
	Denied
	Unavailable
)

func (g Grant) String() string {
	switch g {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "unavailable"
	}
}

// Permissions suspends until the host answers a capability request.
type Permissions interface {
	Request(ctx context.Context, capability Capability) (Grant, error)
}

// AllowAll grants every capability. Useful when the host has no permission
// model, and in tests.
type AllowAll struct{}

func (AllowAll) Request(context.Context, Capability) (Grant, error) {
	return Granted, nil
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// IsImageName reports whether the file name carries a supported image extension.
func IsImageName(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// Selector provides the two entry points of the workflow: capture with a
// camera and pick from the photo library.
type Selector struct {
	photoDir    string
	libraryDir  string
	library     fs.FS
	permissions Permissions
	now         func() time.Time
}

type Option func(*Selector)

// WithLibraryDir backs the library by a directory; picks yield direct paths.
func WithLibraryDir(dir string) Option {
	return func(s *Selector) {
		s.libraryDir = dir
		s.library = os.DirFS(dir)
	}
}

// WithLibraryFS backs the library by an arbitrary file system; picks yield
// locators.
func WithLibraryFS(fsys fs.FS) Option {
	return func(s *Selector) {
		s.libraryDir = ""
		s.library = fsys
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Selector) {
		s.now = now
	}
}

func NewSelector(photoDir string, permissions Permissions, opts ...Option) *Selector {
	if permissions == nil {
		permissions = AllowAll{}
	}
	s := &Selector{
		photoDir:    photoDir,
		permissions: permissions,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Capture creates an empty JPEG_<timestamp>_<random>.jpg file in the photo
// directory and lets the camera fill it. The file is removed again when the
// capture fails or is cancelled.
func (s *Selector) Capture(ctx context.Context, camera Camera) (*ImageAsset, error) {
	if camera == nil || !camera.Available() {
		return nil, ErrNoCamera
	}
	if err := s.request(ctx, CapabilityCamera, ErrNoCamera); err != nil {
		return nil, err
	}

	file, err := s.createImageFile()
	if err != nil {
		return nil, err
	}
	asset := NewFileAsset(file, OriginCamera)

	if err := camera.CaptureTo(ctx, file); err != nil {
		if rerr := asset.Remove(); rerr != nil {
			slog.Warn("failed to remove abandoned capture file", "path", file, "error", rerr)
		}
		return nil, err
	}

	info, err := os.Stat(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, file)
	}
	if info.Size() == 0 {
		_ = asset.Remove()
		return nil, ErrCancelled
	}

	slog.Info("image captured", "path", file, "size_bytes", info.Size())
	return asset, nil
}

func (s *Selector) createImageFile() (string, error) {
	timeStamp := s.now().Format("20060102_150405")
	f, err := os.CreateTemp(s.photoDir, "JPEG_"+timeStamp+"_*.jpg")
	if err != nil {
		return "", fmt.Errorf("failed to create image file in %s: %w", s.photoDir, err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close image file %s: %w", name, err)
	}
	return name, nil
}

// PickFromLibrary resolves a library item by its slash-separated name.
func (s *Selector) PickFromLibrary(ctx context.Context, name string) (*ImageAsset, error) {
	if s.library == nil {
		return nil, ErrNoLibrary
	}
	if err := s.request(ctx, CapabilityLibrary, ErrNoLibrary); err != nil {
		return nil, err
	}

	name = strings.TrimPrefix(filepath.ToSlash(name), "/")
	if !fs.ValidPath(name) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if !IsImageName(name) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedImage, name)
	}

	info, err := fs.Stat(s.library, name)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	if s.libraryDir != "" {
		return NewFileAsset(filepath.Join(s.libraryDir, filepath.FromSlash(name)), OriginLibrary), nil
	}
	return newLocatorAsset(s.library, name), nil
}

// ListLibrary returns the names of all image files in the library.
func (s *Selector) ListLibrary(ctx context.Context) ([]string, error) {
	if s.library == nil {
		return nil, ErrNoLibrary
	}
	if err := s.request(ctx, CapabilityLibrary, ErrNoLibrary); err != nil {
		return nil, err
	}

	var names []string
	err := fs.WalkDir(s.library, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != "." && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if IsImageName(d.Name()) {
			names = append(names, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list photo library: %w", err)
	}
	return names, nil
}

// Resolve rebuilds an asset from its stored record.
func (s *Selector) Resolve(rec Record) (*ImageAsset, error) {
	switch {
	case rec.Path != "":
		asset := NewFileAsset(rec.Path, rec.Origin)
		if rec.Name != "" {
			asset.Name = rec.Name
		}
		return asset, nil
	case rec.Locator != "":
		if s.library == nil {
			return nil, ErrNoLibrary
		}
		return newLocatorAsset(s.library, strings.TrimPrefix(rec.Locator, LocatorPrefix)), nil
	default:
		return nil, ErrNoImage
	}
}

func (s *Selector) request(ctx context.Context, capability Capability, unavailable error) error {
	grant, err := s.permissions.Request(ctx, capability)
	if err != nil {
		return fmt.Errorf("capability request %s failed: %w", capability, err)
	}
	slog.Debug("capability requested", "capability", capability, "grant", grant.String())
	switch grant {
	case Granted:
		return nil
	case Denied:
		return fmt.Errorf("%w: %s", ErrPermissionDenied, capability)
	default:
		return unavailable
	}
}
