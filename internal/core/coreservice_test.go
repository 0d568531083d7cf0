package core

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/jo-hoe/wheatscan/internal/classifier"
	"github.com/jo-hoe/wheatscan/internal/connectivity"
	"github.com/jo-hoe/wheatscan/internal/diagnosis"
	"github.com/jo-hoe/wheatscan/internal/imageprocessing"
	"github.com/jo-hoe/wheatscan/internal/imagesource"
	"github.com/jo-hoe/wheatscan/internal/platform"
	"github.com/jo-hoe/wheatscan/internal/session"
)

type fakeUploader struct {
	mu     sync.Mutex
	calls  []*classifier.UploadRequest
	result classifier.Result
}

func (u *fakeUploader) Upload(_ context.Context, req *classifier.UploadRequest) classifier.Result {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, req)
	return u.result
}

func (u *fakeUploader) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.calls)
}

type fakeLauncher struct {
	urls     []string
	settings []platform.SettingsKind
}

func (l *fakeLauncher) OpenURL(_ context.Context, rawURL string) error {
	l.urls = append(l.urls, rawURL)
	return nil
}

func (l *fakeLauncher) OpenSettings(_ context.Context, kind platform.SettingsKind) error {
	l.settings = append(l.settings, kind)
	return nil
}

type testEnv struct {
	service  *CoreService
	uploader *fakeUploader
	launcher *fakeLauncher
	photoDir string
}

func newTestEnv(t *testing.T, online bool, library fstest.MapFS) *testEnv {
	t.Helper()
	config := DefaultConfig()
	config.Storage.PhotoDir = t.TempDir()

	var opts []imagesource.Option
	if library != nil {
		opts = append(opts, imagesource.WithLibraryFS(library))
	}

	env := &testEnv{
		uploader: &fakeUploader{result: classifier.Success("Septoria")},
		launcher: &fakeLauncher{},
		photoDir: config.Storage.PhotoDir,
	}
	sessions := session.NewMemoryStore(0)
	env.service = NewCoreServiceWithDependencies(config, Dependencies{
		Selector:  imagesource.NewSelector(config.Storage.PhotoDir, nil, opts...),
		Scaler:    imageprocessing.NewScaler(64, 64, 0),
		Uploader:  env.uploader,
		Presenter: diagnosis.NewPresenter(""),
		Checker:   connectivity.Static(online),
		Sessions:  sessions,
		Launcher:  env.launcher,
	})
	t.Cleanup(func() { _ = env.service.Close() })
	return env
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{G: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode error: %v", err)
	}
	return buf.Bytes()
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir error: %v", err)
	}
	return len(entries)
}

func TestCancelAfterCaptureDeletesFile(t *testing.T) {
	env := newTestEnv(t, true, nil)
	ctx := context.Background()
	sid := session.NewSessionID()

	asset, err := env.service.CaptureStream(ctx, sid, bytes.NewReader(pngBytes(t, 10, 10)))
	if err != nil {
		t.Fatalf("CaptureStream error: %v", err)
	}
	if !asset.Exists() {
		t.Fatal("captured file should exist before cancel")
	}

	if err := env.service.Cancel(ctx, sid); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if asset.Exists() {
		t.Error("captured file should be deleted after cancel")
	}
	if env.uploader.count() != 0 {
		t.Errorf("cancel must not upload, got %d calls", env.uploader.count())
	}
	if _, err := env.service.Confirm(ctx, sid); !IsKind(err, KindAcquisition) {
		t.Errorf("confirm after cancel: expected acquisition error, got %v", err)
	}
}

func TestConfirmKeepsFileAndUploadsOnce(t *testing.T) {
	env := newTestEnv(t, true, nil)
	ctx := context.Background()
	sid := session.NewSessionID()

	asset, err := env.service.CaptureStream(ctx, sid, bytes.NewReader(pngBytes(t, 200, 100)))
	if err != nil {
		t.Fatalf("CaptureStream error: %v", err)
	}

	outcome, err := env.service.Confirm(ctx, sid)
	if err != nil {
		t.Fatalf("Confirm error: %v", err)
	}
	if outcome.Offline {
		t.Fatal("expected online outcome")
	}
	if outcome.View.Header != "Disease: septoria" {
		t.Errorf("unexpected header %q", outcome.View.Header)
	}
	if !strings.HasPrefix(outcome.View.Description, "Septoria:") {
		t.Errorf("unexpected description %q", outcome.View.Description)
	}
	if outcome.Preview == nil {
		t.Error("expected a display preview")
	} else if cfg, err := png.DecodeConfig(bytes.NewReader(outcome.Preview)); err != nil || cfg.Width != 50 || cfg.Height != 25 {
		t.Errorf("unexpected preview %+v, %v", cfg, err)
	}

	if !asset.Exists() {
		t.Error("confirm must leave the captured file in place")
	}
	if env.uploader.count() != 1 {
		t.Fatalf("expected exactly one upload, got %d", env.uploader.count())
	}
	req := env.uploader.calls[0]
	if req.FieldName() != "file" || req.ContentType() != "image/jpeg" {
		t.Errorf("unexpected upload request field=%q type=%q", req.FieldName(), req.ContentType())
	}

	_, err = env.service.Confirm(ctx, sid)
	var flowErr *FlowError
	if !errors.As(err, &flowErr) || flowErr.Message != MessageNoImageToProceed {
		t.Errorf("second confirm: expected %q, got %v", MessageNoImageToProceed, err)
	}
	if env.uploader.count() != 1 {
		t.Errorf("second confirm must not upload again, got %d calls", env.uploader.count())
	}
}

func TestConfirmOfflineSkipsUpload(t *testing.T) {
	env := newTestEnv(t, false, nil)
	ctx := context.Background()
	sid := session.NewSessionID()

	if _, err := env.service.CaptureStream(ctx, sid, bytes.NewReader(pngBytes(t, 10, 10))); err != nil {
		t.Fatalf("CaptureStream error: %v", err)
	}

	outcome, err := env.service.Confirm(ctx, sid)
	if err != nil {
		t.Fatalf("Confirm error: %v", err)
	}
	if !outcome.Offline {
		t.Error("expected offline outcome")
	}
	if env.uploader.count() != 0 {
		t.Errorf("expected zero upload calls when offline, got %d", env.uploader.count())
	}
	if _, err := env.service.Pending(ctx, sid); err != nil {
		t.Errorf("pending image should be kept for another attempt, got %v", err)
	}
}

func TestConfirmMissingFile(t *testing.T) {
	env := newTestEnv(t, true, nil)
	ctx := context.Background()
	sid := session.NewSessionID()

	asset, err := env.service.CaptureStream(ctx, sid, bytes.NewReader(pngBytes(t, 10, 10)))
	if err != nil {
		t.Fatalf("CaptureStream error: %v", err)
	}
	if err := os.Remove(asset.Path); err != nil {
		t.Fatalf("Remove error: %v", err)
	}

	_, err = env.service.Confirm(ctx, sid)
	if UserMessage(err) != MessageImageNotFound {
		t.Errorf("expected %q, got %v", MessageImageNotFound, err)
	}
	if env.uploader.count() != 0 {
		t.Errorf("expected no upload, got %d", env.uploader.count())
	}
}

func TestConfirmApiFailure(t *testing.T) {
	env := newTestEnv(t, true, nil)
	env.uploader.result = classifier.Failure(classifier.FailureAPI, "model unavailable")
	ctx := context.Background()
	sid := session.NewSessionID()

	if _, err := env.service.CaptureStream(ctx, sid, bytes.NewReader(pngBytes(t, 10, 10))); err != nil {
		t.Fatalf("CaptureStream error: %v", err)
	}
	outcome, err := env.service.Confirm(ctx, sid)
	if err != nil {
		t.Fatalf("Confirm error: %v", err)
	}
	if outcome.View.Error != "API request failed: model unavailable" {
		t.Errorf("unexpected error text %q", outcome.View.Error)
	}
}

// Offline and upload failures come back as outcomes; only acquisition steps
// produce flow errors.
func TestConfirmFailuresAreOutcomes(t *testing.T) {
	ctx := context.Background()

	offline := newTestEnv(t, false, nil)
	sid := session.NewSessionID()
	if _, err := offline.service.CaptureStream(ctx, sid, bytes.NewReader(pngBytes(t, 10, 10))); err != nil {
		t.Fatalf("CaptureStream error: %v", err)
	}
	if outcome, err := offline.service.Confirm(ctx, sid); err != nil || !outcome.Offline {
		t.Errorf("offline: expected Offline outcome without error, got %+v, %v", outcome, err)
	}

	failing := newTestEnv(t, true, nil)
	failing.uploader.result = classifier.Failure(classifier.FailureTransport, classifier.MessageTimeout)
	sid = session.NewSessionID()
	if _, err := failing.service.CaptureStream(ctx, sid, bytes.NewReader(pngBytes(t, 10, 10))); err != nil {
		t.Fatalf("CaptureStream error: %v", err)
	}
	outcome, err := failing.service.Confirm(ctx, sid)
	if err != nil || outcome.View.Error != classifier.MessageTimeout {
		t.Errorf("transport: expected failure view without error, got %+v, %v", outcome, err)
	}

	_, err = failing.service.Confirm(ctx, sid)
	if !IsKind(err, KindAcquisition) || UserMessage(err) != MessageNoImageToProceed {
		t.Errorf("nothing pending: expected acquisition error, got %v", err)
	}
}

func TestConfirmUndecodableImageStillUploads(t *testing.T) {
	env := newTestEnv(t, true, nil)
	ctx := context.Background()
	sid := session.NewSessionID()

	if _, err := env.service.CaptureStream(ctx, sid, strings.NewReader("not an image")); err != nil {
		t.Fatalf("CaptureStream error: %v", err)
	}
	if _, err := env.service.Preview(ctx, sid); !IsKind(err, KindDecode) {
		t.Errorf("expected decode error for preview, got %v", err)
	}

	outcome, err := env.service.Confirm(ctx, sid)
	if err != nil {
		t.Fatalf("Confirm error: %v", err)
	}
	if outcome.Preview != nil {
		t.Error("expected no preview for undecodable image")
	}
	if env.uploader.count() != 1 {
		t.Errorf("expected one upload, got %d", env.uploader.count())
	}
}

func TestLibraryPickSurvivesCancel(t *testing.T) {
	library := fstest.MapFS{"field/leaf.png": {Data: pngBytes(t, 10, 10)}}
	env := newTestEnv(t, true, library)
	ctx := context.Background()
	sid := session.NewSessionID()

	names, err := env.service.Library(ctx)
	if err != nil || len(names) != 1 || names[0] != "field/leaf.png" {
		t.Fatalf("Library() = %v, %v", names, err)
	}

	asset, err := env.service.Pick(ctx, sid, "field/leaf.png")
	if err != nil {
		t.Fatalf("Pick error: %v", err)
	}
	if _, err := env.service.Preview(ctx, sid); err != nil {
		t.Errorf("Preview error: %v", err)
	}
	if err := env.service.Cancel(ctx, sid); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if !asset.Exists() {
		t.Error("library item must never be deleted")
	}
}

func TestCaptureReplacesPreviousCapture(t *testing.T) {
	env := newTestEnv(t, true, nil)
	ctx := context.Background()
	sid := session.NewSessionID()

	first, err := env.service.CaptureStream(ctx, sid, bytes.NewReader(pngBytes(t, 10, 10)))
	if err != nil {
		t.Fatalf("CaptureStream error: %v", err)
	}
	second, err := env.service.CaptureStream(ctx, sid, bytes.NewReader(pngBytes(t, 10, 10)))
	if err != nil {
		t.Fatalf("CaptureStream error: %v", err)
	}
	if first.Exists() {
		t.Error("replaced capture should be deleted")
	}
	if !second.Exists() {
		t.Error("new capture should exist")
	}
	if n := countFiles(t, env.photoDir); n != 1 {
		t.Errorf("expected one file in photo dir, got %d", n)
	}
}

func TestCaptureErrors(t *testing.T) {
	env := newTestEnv(t, true, nil)
	ctx := context.Background()

	_, err := env.service.CaptureStream(ctx, session.NewSessionID(), strings.NewReader(""))
	if UserMessage(err) != MessageNoImageCaptured || !errors.Is(err, imagesource.ErrCancelled) {
		t.Errorf("empty capture: got %v", err)
	}

	_, err = env.service.Capture(ctx, session.NewSessionID())
	if UserMessage(err) != MessageNoCamera {
		t.Errorf("no camera configured: got %v", err)
	}
	if env.service.HasCameraCommand() {
		t.Error("no camera command configured")
	}

	_, err = env.service.Pick(ctx, session.NewSessionID(), "a.jpg")
	if UserMessage(err) != MessageNoLibrary {
		t.Errorf("no library configured: got %v", err)
	}
	if n := countFiles(t, env.photoDir); n != 0 {
		t.Errorf("failed captures left %d files behind", n)
	}
}

func TestDiagnoseFile(t *testing.T) {
	env := newTestEnv(t, true, nil)
	p := filepath.Join(t.TempDir(), "leaf.png")
	if err := os.WriteFile(p, pngBytes(t, 10, 10), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	outcome, err := env.service.DiagnoseFile(context.Background(), p)
	if err != nil {
		t.Fatalf("DiagnoseFile error: %v", err)
	}
	if outcome.View.Header != "Disease: septoria" {
		t.Errorf("unexpected header %q", outcome.View.Header)
	}
	if ct := env.uploader.calls[0].ContentType(); ct != "image/png" {
		t.Errorf("unexpected content type %q", ct)
	}

	_, err = env.service.DiagnoseFile(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"))
	if UserMessage(err) != MessageImageNotFound {
		t.Errorf("expected %q, got %v", MessageImageNotFound, err)
	}
}

func TestDiagnoseUploadRemovesTempFile(t *testing.T) {
	env := newTestEnv(t, true, nil)

	outcome, err := env.service.DiagnoseUpload(context.Background(), "leaf.PNG", bytes.NewReader(pngBytes(t, 10, 10)))
	if err != nil {
		t.Fatalf("DiagnoseUpload error: %v", err)
	}
	if outcome.View.Failed() {
		t.Errorf("unexpected failure %q", outcome.View.Error)
	}
	if n := countFiles(t, env.photoDir); n != 0 {
		t.Errorf("uploaded image should be removed, found %d files", n)
	}
	if env.uploader.calls[0].Asset().Name != "leaf.PNG" {
		t.Errorf("unexpected upload name %q", env.uploader.calls[0].Asset().Name)
	}

	if _, err := env.service.DiagnoseUpload(context.Background(), "notes.txt", strings.NewReader("x")); UserMessage(err) != MessageUnsupportedImage {
		t.Errorf("expected unsupported image error, got %v", err)
	}
}

func TestOpenSearchAndSettings(t *testing.T) {
	env := newTestEnv(t, true, nil)
	ctx := context.Background()

	if err := env.service.OpenSearch(ctx, "Tan Spot"); err != nil {
		t.Fatalf("OpenSearch error: %v", err)
	}
	if len(env.launcher.urls) != 1 || env.launcher.urls[0] != "https://www.google.com/search?q=tan+spot+wheat+plant" {
		t.Errorf("unexpected urls %v", env.launcher.urls)
	}

	if err := env.service.OpenSettings(ctx, platform.SettingsWifi); err != nil {
		t.Fatalf("OpenSettings error: %v", err)
	}
	if len(env.launcher.settings) != 1 || env.launcher.settings[0] != platform.SettingsWifi {
		t.Errorf("unexpected settings calls %v", env.launcher.settings)
	}
}
