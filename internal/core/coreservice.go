package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jo-hoe/wheatscan/internal/classifier"
	"github.com/jo-hoe/wheatscan/internal/connectivity"
	"github.com/jo-hoe/wheatscan/internal/diagnosis"
	"github.com/jo-hoe/wheatscan/internal/imageprocessing"
	"github.com/jo-hoe/wheatscan/internal/imagesource"
	"github.com/jo-hoe/wheatscan/internal/platform"
	"github.com/jo-hoe/wheatscan/internal/session"
)

// Uploader sends one image to the classifier.
type Uploader interface {
	Upload(ctx context.Context, req *classifier.UploadRequest) classifier.Result
}

// Outcome is what the result screen shows after a confirmed image.
type Outcome struct {
	// Offline is set when the upload was skipped for lack of a network.
	Offline bool
	View    diagnosis.View
	// Preview is the scaled PNG of the image, nil when it could not be decoded.
	Preview []byte
	Asset   *imagesource.ImageAsset
}

// Dependencies are the collaborators of the core service.
type Dependencies struct {
	Selector  *imagesource.Selector
	Camera    imagesource.Camera
	Scaler    *imageprocessing.Scaler
	Uploader  Uploader
	Presenter *diagnosis.Presenter
	Checker   connectivity.Checker
	Sessions  session.Store
	Launcher  platform.Launcher
}

type CoreService struct {
	config    *ServiceConfig
	selector  *imagesource.Selector
	camera    imagesource.Camera
	scaler    *imageprocessing.Scaler
	uploader  Uploader
	presenter *diagnosis.Presenter
	checker   connectivity.Checker
	sessions  session.Store
	launcher  platform.Launcher
	now       func() time.Time
}

func NewCoreService(config *ServiceConfig) (*CoreService, error) {
	if err := os.MkdirAll(config.Storage.PhotoDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create photo directory %s: %w", config.Storage.PhotoDir, err)
	}

	permissions := platform.HostPermissions{
		PhotoDir:   config.Storage.PhotoDir,
		LibraryDir: config.Storage.LibraryDir,
	}
	var selectorOpts []imagesource.Option
	if config.Storage.LibraryDir != "" {
		selectorOpts = append(selectorOpts, imagesource.WithLibraryDir(config.Storage.LibraryDir))
	}

	var camera imagesource.Camera
	if config.Camera.Type == "command" {
		camera = imagesource.NewCommandCamera(config.Camera.Command)
	}

	client, err := classifier.NewClient(classifier.Config{
		BaseURL:    config.Classifier.BaseURL,
		Path:       config.Classifier.Path,
		FieldName:  config.Classifier.FieldName,
		LabelField: config.Classifier.LabelField,
		UserAgent:  config.Classifier.UserAgent,
	}, classifier.NewHTTPClient(config.Classifier.Timeout))
	if err != nil {
		return nil, err
	}

	checker, err := connectivity.New(config.Connectivity.Mode, config.Connectivity.ProbeAddress, config.Connectivity.ProbeTimeout)
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewStore(config.Session.Type, config.Session.ConnectionString, config.Session.TTL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	launcher := platform.NewHostLauncher(map[platform.SettingsKind][]string{
		platform.SettingsWifi:        config.Settings.Wifi,
		platform.SettingsMobileData:  config.Settings.MobileData,
		platform.SettingsPermissions: config.Settings.Permissions,
	})

	slog.Info("core service initialized",
		"classifier", client.Endpoint(),
		"photo_dir", config.Storage.PhotoDir,
		"library_dir", config.Storage.LibraryDir,
		"camera", config.Camera.Type,
		"session_store", config.Session.Type,
		"connectivity", config.Connectivity.Mode)

	return NewCoreServiceWithDependencies(config, Dependencies{
		Selector:  imagesource.NewSelector(config.Storage.PhotoDir, permissions, selectorOpts...),
		Camera:    camera,
		Scaler:    imageprocessing.NewScaler(config.Scaler.MaxWidth, config.Scaler.MaxHeight, config.Scaler.MaxPixels),
		Uploader:  client,
		Presenter: diagnosis.NewPresenter(config.Search.BaseURL),
		Checker:   checker,
		Sessions:  sessions,
		Launcher:  launcher,
	}), nil
}

func NewCoreServiceWithDependencies(config *ServiceConfig, deps Dependencies) *CoreService {
	return &CoreService{
		config:    config,
		selector:  deps.Selector,
		camera:    deps.Camera,
		scaler:    deps.Scaler,
		uploader:  deps.Uploader,
		presenter: deps.Presenter,
		checker:   deps.Checker,
		sessions:  deps.Sessions,
		launcher:  deps.Launcher,
		now:       time.Now,
	}
}

// HasCameraCommand reports whether captures can be triggered on the host
// instead of being uploaded by the browser.
func (service *CoreService) HasCameraCommand() bool {
	return service.camera != nil && service.camera.Available()
}

// Capture takes a picture with the host camera and makes it the pending
// image of the session.
func (service *CoreService) Capture(ctx context.Context, sessionID string) (*imagesource.ImageAsset, error) {
	return service.capture(ctx, sessionID, service.camera)
}

// CaptureStream stores bytes captured by the browser as the pending image.
func (service *CoreService) CaptureStream(ctx context.Context, sessionID string, src io.Reader) (*imagesource.ImageAsset, error) {
	return service.capture(ctx, sessionID, imagesource.NewStreamCamera(src))
}

func (service *CoreService) capture(ctx context.Context, sessionID string, camera imagesource.Camera) (*imagesource.ImageAsset, error) {
	asset, err := service.selector.Capture(ctx, camera)
	if err != nil {
		flowErr := acquisitionError(err, MessageCaptureFailed)
		slog.Warn("capture failed", "session", sessionID, "kind", flowErr.Kind, "error", err)
		return nil, flowErr
	}
	if err := service.setPending(ctx, sessionID, asset); err != nil {
		_ = asset.Remove()
		return nil, err
	}
	return asset, nil
}

func (service *CoreService) Pick(ctx context.Context, sessionID, name string) (*imagesource.ImageAsset, error) {
	asset, err := service.selector.PickFromLibrary(ctx, name)
	if err != nil {
		flowErr := acquisitionError(err, MessageLibraryUnreadable)
		slog.Warn("library pick failed", "session", sessionID, "item", name, "kind", flowErr.Kind, "error", err)
		return nil, flowErr
	}
	if err := service.setPending(ctx, sessionID, asset); err != nil {
		return nil, err
	}
	return asset, nil
}

func (service *CoreService) Library(ctx context.Context) ([]string, error) {
	names, err := service.selector.ListLibrary(ctx)
	if err != nil {
		return nil, acquisitionError(err, MessageLibraryUnreadable)
	}
	return names, nil
}

// setPending replaces the pending image of the session. A replaced camera
// capture is deleted since nothing refers to it anymore.
func (service *CoreService) setPending(ctx context.Context, sessionID string, asset *imagesource.ImageAsset) error {
	if previous, err := service.sessions.Take(ctx, sessionID); err == nil {
		service.discard(previous)
	}
	pending := session.PendingImage{Image: asset.Record(), CreatedAt: service.now()}
	if err := service.sessions.Put(ctx, sessionID, pending); err != nil {
		return newFlowError(KindAcquisition, MessageCaptureFailed, err)
	}
	slog.Info("pending image set", "session", sessionID, "image", asset.Name, "origin", asset.Origin)
	return nil
}

// Pending returns the image waiting in the preview dialog.
func (service *CoreService) Pending(ctx context.Context, sessionID string) (*imagesource.ImageAsset, error) {
	pending, err := service.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, newFlowError(KindAcquisition, MessageNoImageToProceed, err)
	}
	asset, err := service.selector.Resolve(pending.Image)
	if err != nil {
		return nil, newFlowError(KindAcquisition, MessageImageNotFound, err)
	}
	return asset, nil
}

// Preview renders the pending image scaled to the display box.
func (service *CoreService) Preview(ctx context.Context, sessionID string) ([]byte, error) {
	asset, err := service.Pending(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	data, err := service.scaler.PreviewPNG(asset)
	if err != nil {
		slog.Warn("preview decode failed", "session", sessionID, "image", asset.Name, "error", err)
		return nil, decodeError(err)
	}
	return data, nil
}

// Cancel drops the pending image. Camera captures are deleted, library
// items are left alone.
func (service *CoreService) Cancel(ctx context.Context, sessionID string) error {
	pending, err := service.sessions.Take(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to cancel pending image: %w", err)
	}
	service.discard(pending)
	slog.Info("pending image cancelled", "session", sessionID, "image", pending.Image.Name)
	return nil
}

func (service *CoreService) discard(pending session.PendingImage) {
	if pending.Image.Origin != imagesource.OriginCamera {
		return
	}
	asset, err := service.selector.Resolve(pending.Image)
	if err != nil {
		return
	}
	if err := asset.Remove(); err != nil {
		slog.Error("failed to delete captured image", "path", asset.Path, "error", err)
	}
}

// Confirm consumes the pending image and diagnoses it. The pending image is
// removed before anything else happens, so a repeated confirm finds nothing
// to upload. When offline it is put back for the next attempt.
func (service *CoreService) Confirm(ctx context.Context, sessionID string) (Outcome, error) {
	pending, err := service.sessions.Take(ctx, sessionID)
	if err != nil {
		return Outcome{}, newFlowError(KindAcquisition, MessageNoImageToProceed, err)
	}
	asset, err := service.selector.Resolve(pending.Image)
	if err != nil || !asset.Exists() {
		return Outcome{}, newFlowError(KindAcquisition, MessageImageNotFound, err)
	}

	outcome, err := service.Diagnose(ctx, asset)
	if err == nil && outcome.Offline {
		if perr := service.sessions.Put(ctx, sessionID, pending); perr != nil {
			slog.Warn("failed to restore pending image", "session", sessionID, "error", perr)
		}
	}
	return outcome, err
}

// Diagnose checks the network, then decodes the display image and uploads
// the original at the same time. The upload is not tied to ctx's
// cancellation: leaving the page abandons the result but not the request.
func (service *CoreService) Diagnose(ctx context.Context, asset *imagesource.ImageAsset) (Outcome, error) {
	if !service.checker.Available(ctx) {
		slog.Info("skipping upload, no network", "image", asset.Name)
		return Outcome{Offline: true, Asset: asset}, nil
	}

	req, err := classifier.NewUploadRequest(asset, service.config.Classifier.FieldName)
	if err != nil {
		return Outcome{}, newFlowError(KindAcquisition, MessageImageNotFound, err)
	}

	var (
		preview []byte
		result  classifier.Result
		g       errgroup.Group
	)
	g.Go(func() error {
		data, err := service.scaler.PreviewPNG(asset)
		if err != nil {
			slog.Warn("display decode failed", "image", asset.Name, "error", err)
			return nil
		}
		preview = data
		return nil
	})
	g.Go(func() error {
		result = service.uploader.Upload(context.WithoutCancel(ctx), req)
		return nil
	})
	_ = g.Wait()

	return Outcome{
		View:    service.presenter.Present(result),
		Preview: preview,
		Asset:   asset,
	}, nil
}

// DiagnoseFile runs the flow on a file that is already on disk.
func (service *CoreService) DiagnoseFile(ctx context.Context, path string) (Outcome, error) {
	asset := imagesource.NewFileAsset(path, imagesource.OriginUpload)
	if !asset.Exists() {
		return Outcome{}, newFlowError(KindAcquisition, MessageImageNotFound, fmt.Errorf("%s: %w", path, os.ErrNotExist))
	}
	return service.Diagnose(ctx, asset)
}

// DiagnoseUpload stores an uploaded image next to the captures, diagnoses it
// and removes it again.
func (service *CoreService) DiagnoseUpload(ctx context.Context, name string, src io.Reader) (Outcome, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if !imagesource.IsImageName(name) {
		return Outcome{}, newFlowError(KindAcquisition, MessageUnsupportedImage, imagesource.ErrUnsupportedImage)
	}
	f, err := os.CreateTemp(service.config.Storage.PhotoDir, "upload_*"+ext)
	if err != nil {
		return Outcome{}, newFlowError(KindAcquisition, MessageCaptureFailed, err)
	}
	path := f.Name()
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to remove uploaded image", "path", path, "error", err)
		}
	}()

	_, err = io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Outcome{}, newFlowError(KindAcquisition, MessageCaptureFailed, err)
	}

	asset := imagesource.NewFileAsset(path, imagesource.OriginUpload)
	asset.Name = filepath.Base(name)
	return service.Diagnose(ctx, asset)
}

// OpenSearch opens the web search for a diagnosed label on the host.
func (service *CoreService) OpenSearch(ctx context.Context, label string) error {
	target := service.presenter.SearchURL(label)
	if target == "" {
		return errors.New("search is not available")
	}
	return service.launcher.OpenURL(ctx, target)
}

func (service *CoreService) OpenSettings(ctx context.Context, kind platform.SettingsKind) error {
	return service.launcher.OpenSettings(ctx, kind)
}

func (service *CoreService) Diseases() []diagnosis.Entry {
	return diagnosis.Entries()
}

func (service *CoreService) Close() error {
	return service.sessions.Close()
}
