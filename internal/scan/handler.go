package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/subtrack/nativebridge/internal/bridge"
	apierrors "github.com/subtrack/nativebridge/internal/errors"
	"github.com/subtrack/nativebridge/internal/logger"
)

// MethodScanDocument is the only method of the OCR channel.
const MethodScanDocument = "scanDocument"

// maxUploadPageBytes caps a single uploaded page.
const maxUploadPageBytes = 32 << 20

// Handler exposes the pipeline on the OCR bridge channel and over HTTP.
type Handler struct {
	logger   *logger.Logger
	pipeline *Pipeline
}

func NewHandler(pipeline *Pipeline, logger *logger.Logger) *Handler {
	return &Handler{logger: logger.WithComponent("scan-handler"), pipeline: pipeline}
}

// HandleMethodCall serves the OCR channel. A missing scanner is reported
// before the call returns; otherwise the scan runs in its own goroutine and
// resolves result exactly once.
func (h *Handler) HandleMethodCall(ctx context.Context, call bridge.MethodCall, result bridge.Result) {
	if call.Method != MethodScanDocument {
		result.NotImplemented()
		return
	}

	ctx = logger.WithOperation(context.WithoutCancel(ctx), call.Method)
	if err := h.pipeline.checkAvailable(); err != nil {
		resolveError(result, err)
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				h.logger.WithContext(ctx).Error("document scan panicked", slog.String("panic", fmt.Sprint(r)))
				result.Error(bridge.CodePanic, "handler for "+call.Method+" panicked", fmt.Sprint(r))
			}
		}()

		texts, err := h.pipeline.ScanDocument(ctx)
		if err != nil {
			h.logger.LogError(ctx, err, "document scan failed")
			resolveError(result, err)
			return
		}
		result.Success(texts)
	}()
}

func resolveError(result bridge.Result, err error) {
	var scanErr *Error
	if !errors.As(err, &scanErr) {
		result.Error(bridge.CodeScanFailed, "Document scan failed", err.Error())
		return
	}
	switch scanErr.Kind {
	case KindUnavailable:
		result.Error(bridge.CodeUnavailable, scanErr.Message, nil)
	case KindBusy:
		result.Error(bridge.CodeScanInProgress, scanErr.Message, nil)
	default:
		result.Error(bridge.CodeScanFailed, "Document scan failed", scanErr.Message)
	}
}

// RegisterRoutes mounts the scan endpoints on group.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/scan/document", h.Document)
	group.POST("/scan/upload", h.Upload)
}

// DocumentResponse carries the texts of an interactive scan in page order.
type DocumentResponse struct {
	Texts []string `json:"texts"`
}

// POST /scan/document
//
// Runs an interactive scan on the host scanner and waits for its texts.
func (h *Handler) Document(c *gin.Context) {
	ctx := logger.WithOperation(c.Request.Context(), MethodScanDocument)

	texts, err := h.pipeline.ScanDocument(ctx)
	if err != nil {
		h.logger.LogError(ctx, err, "document scan failed")
		var scanErr *Error
		if !errors.As(err, &scanErr) {
			apierrors.AbortWithInternal(c, "Document scan failed", nil)
			return
		}
		switch scanErr.Kind {
		case KindUnavailable:
			apierrors.AbortWithUnavailable(c, bridge.CodeUnavailable, scanErr.Message, nil)
		case KindBusy:
			apierrors.AbortWithConflict(c, bridge.CodeScanInProgress, scanErr.Message, nil)
		default:
			apierrors.AbortWithUnprocessable(c, bridge.CodeScanFailed, "Document scan failed",
				map[string]interface{}{"reason": scanErr.Message})
		}
		return
	}
	c.JSON(http.StatusOK, DocumentResponse{Texts: texts})
}

// UploadResponse carries the recognized texts in page order.
type UploadResponse struct {
	Pages int      `json:"pages"`
	Texts []string `json:"texts"`
}

// POST /scan/upload
//
// Multipart form with one or more "pages" files, in page order.
func (h *Handler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		apierrors.AbortWithBadRequest(c, "invalid multipart form: "+err.Error(), nil)
		return
	}
	files := form.File["pages"]
	if len(files) == 0 {
		apierrors.AbortWithBadRequest(c, "at least one page is required", nil)
		return
	}

	pages := make([]Page, 0, len(files))
	for i, fh := range files {
		if fh.Size > maxUploadPageBytes {
			apierrors.AbortWithBadRequest(c, "page too large", map[string]interface{}{"page": fh.Filename})
			return
		}
		f, err := fh.Open()
		if err != nil {
			apierrors.AbortWithBadRequest(c, "unreadable page", map[string]interface{}{"page": fh.Filename})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			apierrors.AbortWithBadRequest(c, "unreadable page", map[string]interface{}{"page": fh.Filename})
			return
		}
		pages = append(pages, Page{Index: i, Name: fh.Filename, Image: data})
	}

	texts := h.pipeline.RecognizePages(c.Request.Context(), pages)
	c.JSON(http.StatusOK, UploadResponse{Pages: len(pages), Texts: texts})
}
