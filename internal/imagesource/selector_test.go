package imagesource

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"testing/fstest"
	"time"
)

type fixedPermissions map[Capability]Grant

func (p fixedPermissions) Request(_ context.Context, c Capability) (Grant, error) {
	if g, ok := p[c]; ok {
		return g, nil
	}
	return Granted, nil
}

type failingCamera struct {
	err error
}

func (c failingCamera) Available() bool { return true }

func (c failingCamera) CaptureTo(context.Context, string) error { return c.err }

func fixedClock() time.Time {
	return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
}

func TestCapture_WritesTimestampedFile(t *testing.T) {
	dir := t.TempDir()
	s := NewSelector(dir, nil, WithClock(fixedClock))

	asset, err := s.Capture(context.Background(), NewStreamCamera(bytes.NewReader([]byte("jpeg-bytes"))))
	if err != nil {
		t.Fatalf("Capture error: %v", err)
	}

	if asset.Origin != OriginCamera {
		t.Errorf("expected origin camera, got %s", asset.Origin)
	}
	if filepath.Dir(asset.Path) != dir {
		t.Errorf("expected file in %s, got %s", dir, asset.Path)
	}
	pattern := regexp.MustCompile(`^JPEG_20240309_140507_\d+\.jpg$`)
	if !pattern.MatchString(asset.Name) {
		t.Errorf("unexpected file name %q", asset.Name)
	}
	data, err := os.ReadFile(asset.Path)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Errorf("unexpected file content %q", data)
	}
}

func TestCapture_EmptyStreamIsCancelled(t *testing.T) {
	dir := t.TempDir()
	s := NewSelector(dir, nil)

	_, err := s.Capture(context.Background(), NewStreamCamera(strings.NewReader("")))
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	assertEmptyDir(t, dir)
}

func TestCapture_CameraFailureRemovesFile(t *testing.T) {
	dir := t.TempDir()
	s := NewSelector(dir, nil)

	boom := errors.New("sensor failure")
	_, err := s.Capture(context.Background(), failingCamera{err: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("expected camera error, got %v", err)
	}
	assertEmptyDir(t, dir)
}

func TestCapture_NoCamera(t *testing.T) {
	s := NewSelector(t.TempDir(), nil)

	if _, err := s.Capture(context.Background(), nil); !errors.Is(err, ErrNoCamera) {
		t.Errorf("expected ErrNoCamera for nil camera, got %v", err)
	}
	if _, err := s.Capture(context.Background(), NewCommandCamera(nil)); !errors.Is(err, ErrNoCamera) {
		t.Errorf("expected ErrNoCamera for empty command, got %v", err)
	}
}

func TestCapture_PermissionOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		grant   Grant
		wantErr error
	}{
		{name: "denied", grant: Denied, wantErr: ErrPermissionDenied},
		{name: "unavailable", grant: Unavailable, wantErr: ErrNoCamera},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			s := NewSelector(dir, fixedPermissions{CapabilityCamera: tt.grant})

			_, err := s.Capture(context.Background(), NewStreamCamera(strings.NewReader("x")))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			assertEmptyDir(t, dir)
		})
	}
}

func TestPickFromLibrary_DirectoryYieldsPath(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "leaf.PNG"), []byte("png"), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	s := NewSelector(t.TempDir(), nil, WithLibraryDir(dir))

	asset, err := s.PickFromLibrary(context.Background(), "leaf.PNG")
	if err != nil {
		t.Fatalf("PickFromLibrary error: %v", err)
	}
	if asset.Path != filepath.Join(dir, "leaf.PNG") {
		t.Errorf("unexpected path %q", asset.Path)
	}
	if asset.Locator != "" {
		t.Errorf("expected no locator, got %q", asset.Locator)
	}
	if asset.Extension() != "png" {
		t.Errorf("expected extension png, got %q", asset.Extension())
	}
}

func TestPickFromLibrary_FSYieldsLocator(t *testing.T) {
	library := fstest.MapFS{
		"whatsapp/field.jpg": {Data: []byte("jpeg")},
	}
	s := NewSelector(t.TempDir(), nil, WithLibraryFS(library))

	asset, err := s.PickFromLibrary(context.Background(), "whatsapp/field.jpg")
	if err != nil {
		t.Fatalf("PickFromLibrary error: %v", err)
	}
	if asset.Path != "" {
		t.Errorf("expected no direct path, got %q", asset.Path)
	}
	if asset.Locator != "library:whatsapp/field.jpg" {
		t.Errorf("unexpected locator %q", asset.Locator)
	}
	if !asset.Exists() {
		t.Error("expected locator asset to exist")
	}

	rc, err := asset.Open()
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "jpeg" {
		t.Errorf("unexpected content %q", data)
	}

	resolved, err := s.Resolve(asset.Record())
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if resolved.Locator != asset.Locator || !resolved.Exists() {
		t.Errorf("resolved asset does not match original: %+v", resolved)
	}
}

func TestPickFromLibrary_Errors(t *testing.T) {
	library := fstest.MapFS{
		"notes.txt": {Data: []byte("text")},
		"dir/a.jpg": {Data: []byte("jpeg")},
	}
	s := NewSelector(t.TempDir(), nil, WithLibraryFS(library))

	tests := []struct {
		name    string
		item    string
		wantErr error
	}{
		{name: "missing", item: "nope.jpg", wantErr: ErrNotFound},
		{name: "escape", item: "../etc/passwd.jpg", wantErr: ErrNotFound},
		{name: "not an image", item: "notes.txt", wantErr: ErrUnsupportedImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.PickFromLibrary(context.Background(), tt.item); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	noLibrary := NewSelector(t.TempDir(), nil)
	if _, err := noLibrary.PickFromLibrary(context.Background(), "a.jpg"); !errors.Is(err, ErrNoLibrary) {
		t.Errorf("expected ErrNoLibrary, got %v", err)
	}

	denied := NewSelector(t.TempDir(), fixedPermissions{CapabilityLibrary: Denied}, WithLibraryFS(library))
	if _, err := denied.PickFromLibrary(context.Background(), "dir/a.jpg"); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestListLibrary(t *testing.T) {
	library := fstest.MapFS{
		"b.png":          {Data: []byte("png")},
		"a.JPG":          {Data: []byte("jpeg")},
		"readme.md":      {Data: []byte("text")},
		"sub/c.webp":     {Data: []byte("webp")},
		".thumbs/d.jpeg": {Data: []byte("jpeg")},
	}
	s := NewSelector(t.TempDir(), nil, WithLibraryFS(library))

	names, err := s.ListLibrary(context.Background())
	if err != nil {
		t.Fatalf("ListLibrary error: %v", err)
	}
	want := []string{"a.JPG", "b.png", "sub/c.webp"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestAssetRemove(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "JPEG_1.jpg")
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	asset := NewFileAsset(p, OriginCamera)
	if err := asset.Remove(); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if asset.Exists() {
		t.Error("expected file to be gone")
	}
	// removing twice is not an error
	if err := asset.Remove(); err != nil {
		t.Errorf("second Remove error: %v", err)
	}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected %s to be empty, found %d entries", dir, len(entries))
	}
}
