package batch

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/ingest"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/routes/params"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var validate = validator.New()

// Service is the part of the review workflow the batch routes call
type Service interface {
	SubmitBatch(ctx context.Context, batchID string, records []models.SourceRecord, cfg models.ResolutionConfig) (*models.Batch, *models.ResolutionResult, error)
	GetBatch(ctx context.Context, batchID string) (*models.Batch, error)
	ListBatches(ctx context.Context, opts models.ListOptions) (models.Page[models.Batch], error)
	ReindexBatch(ctx context.Context, batchID string) (*models.ResolutionResult, error)
}

// Handler handles batch ingestion and resolution endpoints
type Handler struct {
	service  Service
	defaults models.ResolutionConfig
	logger   ectologger.Logger
	now      func() time.Time
}

// NewHandler creates a batch handler. defaults is used when a request has no config.
func NewHandler(service Service, defaults models.ResolutionConfig, logger ectologger.Logger) *Handler {
	return &Handler{
		service:  service,
		defaults: defaults,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register registers the batch routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.POST("", h.Submit)
	g.POST("/csv", h.UploadCSV)
	g.GET("/:id", h.Get)
	g.POST("/:id/reindex", h.Reindex)
}

// SubmitRequest is the body of POST /batches
type SubmitRequest struct {
	BatchID string                   `json:"batch_id"`
	Records []models.SourceRecord    `json:"records" validate:"required,min=1"`
	Config  *models.ResolutionConfig `json:"config,omitempty"`
}

// SubmitResponse is the stored batch and the result of its first resolution
type SubmitResponse struct {
	Batch  *models.Batch            `json:"batch"`
	Result *models.ResolutionResult `json:"result"`
}

// Submit stores a batch of records and resolves it
func (h *Handler) Submit(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "batch_handler.Submit")
	defer span.End()

	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	cfg := h.defaults
	if req.Config != nil {
		cfg = *req.Config
	}

	batch, result, err := h.service.SubmitBatch(ctx, req.BatchID, req.Records, cfg)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id": batch.ID,
		"records":  batch.RecordCount,
		"clusters": batch.ClusterCount,
	}).Info("Batch submitted")

	return c.JSON(http.StatusCreated, SubmitResponse{Batch: batch, Result: result})
}

// UploadCSV reads records from a CSV body or a multipart "file" field and
// resolves them as a new batch with the default config
func (h *Handler) UploadCSV(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "batch_handler.UploadCSV")
	defer span.End()

	batchID := c.QueryParam("batch_id")
	if batchID == "" {
		batchID = c.FormValue("batch_id")
	}
	if batchID == "" {
		batchID = uuid.New().String()
	}

	body, err := csvBody(c)
	if err != nil {
		return err
	}
	defer body.Close()

	records, rejected, err := ingest.ReadCSV(body, batchID, h.now())
	if err != nil {
		return err
	}
	if len(rejected) > 0 {
		h.logger.WithContext(ctx).WithFields(map[string]any{
			"batch_id": batchID,
			"rejected": len(rejected),
		}).Warn("Skipping unparseable csv rows")
	}

	batch, result, err := h.service.SubmitBatch(ctx, batchID, records, h.defaults)
	if err != nil {
		return err
	}
	if result != nil {
		result.Rejected = append(rejected, result.Rejected...)
	}
	return c.JSON(http.StatusCreated, SubmitResponse{Batch: batch, Result: result})
}

func csvBody(c echo.Context) (io.ReadCloser, error) {
	if !strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		return c.Request().Body, nil
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "multipart upload requires a file field")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "failed to open uploaded file")
	}
	return f, nil
}

// List returns a page of batches
func (h *Handler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "batch_handler.List")
	defer span.End()

	opts, err := params.ListOptions(c)
	if err != nil {
		return err
	}
	if opts.Status != "" {
		if _, ok := models.ParseBatchStatus(opts.Status); !ok {
			return httperror.NewHTTPError(http.StatusBadRequest, "unknown batch status "+opts.Status)
		}
	}

	page, err := h.service.ListBatches(ctx, opts)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// Get returns a batch by id
func (h *Handler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "batch_handler.Get")
	defer span.End()

	batch, err := h.service.GetBatch(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, batch)
}

// Reindex re-runs resolution for a batch, keeping locked clusters whose records
// haven't changed
func (h *Handler) Reindex(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "batch_handler.Reindex")
	defer span.End()

	result, err := h.service.ReindexBatch(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
