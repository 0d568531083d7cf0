package backend

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jo-hoe/wheatscan/internal/connectivity"
	"github.com/jo-hoe/wheatscan/internal/core"
)

const UploadFieldName = "file"

type APIService struct {
	coreService *core.CoreService
	config      *core.ServiceConfig
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewAPIService(config *core.ServiceConfig, coreService *core.CoreService) *APIService {
	return &APIService{
		coreService: coreService,
		config:      config,
	}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	// Set probe route
	e.GET("/probe", func(c echo.Context) error {
		return c.String(http.StatusOK, "wheatscan is running")
	})

	e.GET("/api/diseases", s.diseasesHandler)
	e.POST("/api/diagnose", s.diagnoseHandler)
}

func (s *APIService) diseasesHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, s.coreService.Diseases())
}

// diagnoseHandler runs one uploaded image through the classifier. A
// classifier failure is still a complete answer and carries the text the
// result screen would show.
func (s *APIService) diagnoseHandler(c echo.Context) error {
	file, err := c.FormFile(UploadFieldName)
	if err != nil {
		slog.Warn("diagnoseHandler: missing upload", "status", http.StatusBadRequest, "error", err)
		return c.JSON(http.StatusBadRequest, errorResponse{Error: core.MessageNoImageToProceed})
	}

	src, err := file.Open()
	if err != nil {
		slog.Error("diagnoseHandler: failed to open uploaded file",
			"status", http.StatusInternalServerError, "error", err, "filename", file.Filename)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to open uploaded file"})
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Error("diagnoseHandler: failed to close uploaded file reader", "error", cerr, "filename", file.Filename)
		}
	}()

	outcome, err := s.coreService.DiagnoseUpload(c.Request().Context(), file.Filename, src)
	if err != nil {
		slog.Warn("diagnoseHandler: diagnosis failed", "filename", file.Filename, "error", err)
		return c.JSON(http.StatusBadRequest, errorResponse{Error: core.UserMessage(err)})
	}
	if outcome.Offline {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: connectivity.OfflineTitle})
	}
	if outcome.View.Failed() {
		return c.JSON(http.StatusBadGateway, errorResponse{Error: outcome.View.Error})
	}
	return c.JSON(http.StatusOK, outcome.View)
}
