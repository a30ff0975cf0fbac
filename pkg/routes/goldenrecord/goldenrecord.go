package goldenrecord

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/routes/params"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

type Service interface {
	ListGoldenRecords(ctx context.Context, opts models.ListOptions) (models.Page[models.GoldenRecord], error)
}

// Handler handles golden record endpoints
type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Register registers the golden record routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
}

// List returns a page of golden records. search matches name, email or organization.
func (h *Handler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "goldenrecord_handler.List")
	defer span.End()

	opts, err := params.ListOptions(c)
	if err != nil {
		return err
	}

	page, err := h.service.ListGoldenRecords(ctx, opts)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}
