package frontend

import (
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/jo-hoe/wheatscan/internal/connectivity"
	"github.com/jo-hoe/wheatscan/internal/core"
	"github.com/jo-hoe/wheatscan/internal/diagnosis"
	"github.com/jo-hoe/wheatscan/internal/imageprocessing"
	"github.com/jo-hoe/wheatscan/internal/platform"
	"github.com/jo-hoe/wheatscan/internal/session"
)

const (
	MainPageName      = "index.html"
	SessionCookieName = "wheatscan_session"
	PermissionTitle   = "Permissions Required"
	mimePNG           = "image/png"
)

type FrontendService struct {
	coreService *core.CoreService
	config      *core.ServiceConfig
}

type pickRequest struct {
	Name string `form:"name" validate:"required"`
}

type searchRequest struct {
	Label string `form:"label" validate:"required"`
}

type previewData struct {
	Name      string
	Timestamp string
}

type resultData struct {
	View    diagnosis.View
	Preview template.URL
}

// dialogData fills the offline and permission dialogs.
type dialogData struct {
	Title   string
	Message string
}

type libraryData struct {
	Names []string
}

func NewFrontendService(config *core.ServiceConfig, coreService *core.CoreService) *FrontendService {
	return &FrontendService{
		coreService: coreService,
		config:      config,
	}
}

// rootRedirectHandler redirects root path to index.html
func (service *FrontendService) rootRedirectHandler(ctx echo.Context) error {
	return ctx.Redirect(http.StatusMovedPermanently, "/"+MainPageName)
}

func (service *FrontendService) SetRoutes(e *echo.Echo) {
	e.Renderer = NewTemplate()

	e.GET("/", service.rootRedirectHandler)
	e.GET("/"+MainPageName, service.indexHandler)

	e.POST("/htmx/capture", service.htmxCaptureHandler)
	e.GET("/htmx/library", service.htmxLibraryHandler)
	e.POST("/htmx/library/pick", service.htmxPickHandler)

	e.GET("/htmx/preview", service.htmxPreviewHandler)
	e.GET("/htmx/preview/image", service.htmxPreviewImageHandler)
	e.POST("/htmx/preview/confirm", service.htmxConfirmHandler)
	e.POST("/htmx/preview/cancel", service.htmxCancelHandler)

	e.POST("/htmx/settings/:kind", service.htmxSettingsHandler)
	e.POST("/htmx/search", service.htmxSearchHandler)

	e.GET("/icon/alert.png", service.iconHandler(imageprocessing.AlertIconPNG))
	e.GET("/icon/nowifi.png", service.iconHandler(imageprocessing.NoWifiIconPNG))
}

func (service *FrontendService) indexHandler(ctx echo.Context) error {
	service.sessionID(ctx)
	return ctx.Render(http.StatusOK, MainPageName, map[string]any{
		"CameraCommand": service.coreService.HasCameraCommand(),
	})
}

func (service *FrontendService) htmxCaptureHandler(ctx echo.Context) error {
	sessionID := service.sessionID(ctx)
	reqCtx := ctx.Request().Context()

	file, err := ctx.FormFile("image")
	if err != nil {
		if !errors.Is(err, http.ErrMissingFile) {
			slog.Warn("htmxCaptureHandler: failed to read form", "status", http.StatusBadRequest, "error", err)
			return ctx.String(http.StatusBadRequest, "Failed to read captured image")
		}
		if !service.coreService.HasCameraCommand() {
			return service.renderMessage(ctx, core.MessageNoImageCaptured)
		}
		asset, err := service.coreService.Capture(reqCtx, sessionID)
		if err != nil {
			return service.renderFlowError(ctx, err)
		}
		return service.renderPreview(ctx, asset.Name)
	}

	src, err := file.Open()
	if err != nil {
		slog.Error("htmxCaptureHandler: failed to open uploaded file",
			"status", http.StatusInternalServerError, "error", err, "filename", file.Filename)
		return ctx.String(http.StatusInternalServerError, "Failed to open captured image")
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Error("htmxCaptureHandler: failed to close uploaded file reader", "error", cerr, "filename", file.Filename)
		}
	}()

	asset, err := service.coreService.CaptureStream(reqCtx, sessionID, src)
	if err != nil {
		return service.renderFlowError(ctx, err)
	}
	return service.renderPreview(ctx, asset.Name)
}

func (service *FrontendService) htmxLibraryHandler(ctx echo.Context) error {
	names, err := service.coreService.Library(ctx.Request().Context())
	if err != nil {
		return service.renderFlowError(ctx, err)
	}
	service.setNoCache(ctx)
	return ctx.Render(http.StatusOK, "library", libraryData{Names: names})
}

func (service *FrontendService) htmxPickHandler(ctx echo.Context) error {
	var req pickRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}
	if err := ctx.Validate(&req); err != nil {
		return err
	}

	asset, err := service.coreService.Pick(ctx.Request().Context(), service.sessionID(ctx), req.Name)
	if err != nil {
		return service.renderFlowError(ctx, err)
	}
	return service.renderPreview(ctx, asset.Name)
}

// htmxPreviewHandler shows the preview dialog again for the pending image,
// e.g. after the offline dialog was cancelled.
func (service *FrontendService) htmxPreviewHandler(ctx echo.Context) error {
	asset, err := service.coreService.Pending(ctx.Request().Context(), service.sessionID(ctx))
	if err != nil {
		return service.renderFlowError(ctx, err)
	}
	return service.renderPreview(ctx, asset.Name)
}

func (service *FrontendService) htmxPreviewImageHandler(ctx echo.Context) error {
	data, err := service.coreService.Preview(ctx.Request().Context(), service.sessionID(ctx))
	switch {
	case core.IsKind(err, core.KindDecode):
		data, err = imageprocessing.AlertIconPNG()
		if err != nil {
			slog.Error("htmxPreviewImageHandler: failed to render placeholder", "error", err)
			return ctx.String(http.StatusInternalServerError, "Failed to render placeholder")
		}
	case err != nil:
		slog.Warn("htmxPreviewImageHandler: no preview available", "status", http.StatusNotFound, "error", err)
		return ctx.String(http.StatusNotFound, core.UserMessage(err))
	}

	service.setNoCache(ctx)
	return ctx.Blob(http.StatusOK, mimePNG, data)
}

func (service *FrontendService) htmxConfirmHandler(ctx echo.Context) error {
	outcome, err := service.coreService.Confirm(ctx.Request().Context(), service.sessionID(ctx))
	if err != nil {
		return service.renderFlowError(ctx, err)
	}
	if outcome.Offline {
		return ctx.Render(http.StatusOK, "offline", dialogData{
			Title:   connectivity.OfflineTitle,
			Message: connectivity.OfflineMessage,
		})
	}

	data := resultData{View: outcome.View}
	if outcome.Preview != nil {
		data.Preview = template.URL("data:" + mimePNG + ";base64," + base64.StdEncoding.EncodeToString(outcome.Preview))
	}
	service.setNoCache(ctx)
	return ctx.Render(http.StatusOK, "result", data)
}

func (service *FrontendService) htmxCancelHandler(ctx echo.Context) error {
	if err := service.coreService.Cancel(ctx.Request().Context(), service.sessionID(ctx)); err != nil {
		slog.Error("htmxCancelHandler: failed to cancel pending image", "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to cancel")
	}
	return ctx.Render(http.StatusOK, "cleared", nil)
}

func (service *FrontendService) htmxSettingsHandler(ctx echo.Context) error {
	kind, err := platform.ParseSettingsKind(ctx.Param("kind"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := service.coreService.OpenSettings(ctx.Request().Context(), kind); err != nil {
		slog.Warn("htmxSettingsHandler: failed to open settings", "kind", kind, "error", err)
		return ctx.String(http.StatusServiceUnavailable, "Settings could not be opened on this device")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (service *FrontendService) htmxSearchHandler(ctx echo.Context) error {
	var req searchRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}
	if err := ctx.Validate(&req); err != nil {
		return err
	}
	if err := service.coreService.OpenSearch(ctx.Request().Context(), req.Label); err != nil {
		slog.Warn("htmxSearchHandler: failed to open search", "label", req.Label, "error", err)
		return ctx.String(http.StatusServiceUnavailable, "Search could not be opened on this device")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (service *FrontendService) iconHandler(render func() ([]byte, error)) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		data, err := render()
		if err != nil {
			slog.Error("iconHandler: failed to render icon", "status", http.StatusInternalServerError, "error", err)
			return ctx.String(http.StatusInternalServerError, "Failed to load icon")
		}
		// Cache for 7 days
		ctx.Response().Header().Set("Cache-Control", "public, max-age=604800, immutable")
		return ctx.Blob(http.StatusOK, mimePNG, data)
	}
}

func (service *FrontendService) renderPreview(ctx echo.Context, name string) error {
	service.setNoCache(ctx)
	return ctx.Render(http.StatusOK, "preview", previewData{
		Name:      name,
		Timestamp: service.timestampNanoStr(),
	})
}

// renderFlowError shows the message of a failed step in place of the stage.
// A denied permission gets a dialog linking to the settings screen. htmx only
// swaps successful responses, hence the 200.
func (service *FrontendService) renderFlowError(ctx echo.Context, err error) error {
	slog.Warn("flow step failed", "path", ctx.Path(), "error", err)
	if core.IsKind(err, core.KindPermission) {
		return ctx.Render(http.StatusOK, "permission", dialogData{
			Title:   PermissionTitle,
			Message: core.UserMessage(err),
		})
	}
	return service.renderMessage(ctx, core.UserMessage(err))
}

func (service *FrontendService) renderMessage(ctx echo.Context, message string) error {
	return ctx.Render(http.StatusOK, "message", message)
}

// sessionID returns the id from the session cookie and issues a new one when
// the cookie is missing or malformed.
func (service *FrontendService) sessionID(ctx echo.Context) string {
	if cookie, err := ctx.Cookie(SessionCookieName); err == nil && session.ValidSessionID(cookie.Value) {
		return cookie.Value
	}
	id := session.NewSessionID()
	ctx.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	// later lookups in the same request see the new id
	ctx.Request().AddCookie(&http.Cookie{Name: SessionCookieName, Value: id})
	return id
}

func (service *FrontendService) setNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	ctx.Response().Header().Set("Pragma", "no-cache")
	ctx.Response().Header().Set("Expires", "0")
}

func (service *FrontendService) timestampNanoStr() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
