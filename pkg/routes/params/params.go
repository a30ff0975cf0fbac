// Package params parses the query parameters shared by the list endpoints
package params

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
)

// ListOptions reads page, page_size, batch_id, status and search.
// Missing paging values fall back to the defaults of models.ListOptions.
func ListOptions(c echo.Context) (models.ListOptions, error) {
	opts := models.ListOptions{
		BatchID: c.QueryParam("batch_id"),
		Status:  c.QueryParam("status"),
		Search:  c.QueryParam("search"),
	}

	var err error
	if opts.Page, err = intParam(c, "page"); err != nil {
		return opts, err
	}
	if opts.PageSize, err = intParam(c, "page_size"); err != nil {
		return opts, err
	}
	return opts.Normalize(), nil
}

func intParam(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, httperror.NewHTTPError(http.StatusBadRequest, name+" must be a non-negative integer")
	}
	return v, nil
}
