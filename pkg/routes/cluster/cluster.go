package cluster

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/review"
	"github.com/Ramsey-B/clover/pkg/routes/params"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Service is the part of the review workflow the cluster routes call
type Service interface {
	GetCluster(ctx context.Context, clusterID string) (*review.ClusterView, error)
	ListClusters(ctx context.Context, opts models.ListOptions) (models.Page[models.Cluster], error)
	AcceptMerge(ctx context.Context, clusterID, chosenRecordID string) (*models.Cluster, *models.GoldenRecord, error)
}

// Handler handles cluster review endpoints
type Handler struct {
	service Service
	logger  ectologger.Logger
}

// NewHandler creates a cluster handler
func NewHandler(service Service, logger ectologger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register registers the cluster routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/accept", h.Accept)
}

// List returns a page of clusters, filtered by batch_id and status
func (h *Handler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "cluster_handler.List")
	defer span.End()

	opts, err := params.ListOptions(c)
	if err != nil {
		return err
	}
	if opts.Status != "" {
		if _, ok := models.ParseClusterStatus(opts.Status); !ok {
			return httperror.NewHTTPError(http.StatusBadRequest, "unknown cluster status "+opts.Status)
		}
	}

	page, err := h.service.ListClusters(ctx, opts)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

// Get returns a cluster with its golden record
func (h *Handler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "cluster_handler.Get")
	defer span.End()

	view, err := h.service.GetCluster(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// AcceptRequest is the optional body of POST /clusters/:id/accept
type AcceptRequest struct {
	ChosenRecordID string `json:"chosen_record_id"`
}

// Accept confirms a cluster as merged and locks it
func (h *Handler) Accept(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "cluster_handler.Accept")
	defer span.End()

	var req AcceptRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}

	cluster, golden, err := h.service.AcceptMerge(ctx, c.Param("id"), req.ChosenRecordID)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"cluster_id":       cluster.ID,
		"chosen_record_id": req.ChosenRecordID,
	}).Info("Cluster accepted")

	return c.JSON(http.StatusOK, review.ClusterView{Cluster: *cluster, GoldenRecord: golden})
}
