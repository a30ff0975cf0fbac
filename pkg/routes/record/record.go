package record

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Service splits records out of their clusters
type Service interface {
	SplitRecord(ctx context.Context, recordID string) ([]models.Cluster, error)
}

// Handler handles source record endpoints
type Handler struct {
	service Service
	logger  ectologger.Logger
}

// NewHandler creates a record handler
func NewHandler(service Service, logger ectologger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register registers the record routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/:id/split", h.Split)
}

// SplitResponse lists the clusters rebuilt from the remaining members
type SplitResponse struct {
	RecordID string           `json:"record_id"`
	Clusters []models.Cluster `json:"clusters"`
}

// Split removes a record from its active cluster
func (h *Handler) Split(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "record_handler.Split")
	defer span.End()

	recordID := c.Param("id")
	clusters, err := h.service.SplitRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if clusters == nil {
		clusters = []models.Cluster{}
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"record_id": recordID,
		"clusters":  len(clusters),
	}).Info("Record split")

	return c.JSON(http.StatusOK, SplitResponse{RecordID: recordID, Clusters: clusters})
}
