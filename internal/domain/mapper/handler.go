package mapper

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/pheno/pheno/internal/domain/phenotype"
	"github.com/pheno/pheno/internal/domain/recognition"
	"github.com/pheno/pheno/internal/platform/auth"
)

// MaxRows bounds the number of rows accepted by one request.
const MaxRows = recognition.MaxBatchCells

// MapRequest is the body of POST /api/v1/map.
type MapRequest struct {
	Schema *Schema          `json:"schema"`
	Rows   []map[string]any `json:"rows"`
}

// MapResponse holds one deduplicated term list per input row.
type MapResponse struct {
	Rows [][]*phenotype.HpTerm `json:"rows"`
}

// Handler exposes row mapping over HTTP.
type Handler struct {
	engine  *recognition.Engine
	overlay *recognition.Overlay
	logger  zerolog.Logger
}

// NewHandler creates a mapping handler. overlay is layered beneath every
// custom column's own overlay.
func NewHandler(engine *recognition.Engine, overlay *recognition.Overlay, logger zerolog.Logger) *Handler {
	return &Handler{engine: engine, overlay: overlay, logger: logger}
}

// RegisterRoutes registers the mapping route on the API group.
func (h *Handler) RegisterRoutes(api *echo.Group, requireScopes bool) {
	var mw []echo.MiddlewareFunc
	if requireScopes {
		mw = append(mw, auth.RequireScope(auth.ScopeRecognize))
	}
	api.POST("/map", h.MapRows, mw...)
}

// MapRows handles POST /api/v1/map
func (h *Handler) MapRows(c echo.Context) error {
	var req MapRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	resp, err := h.Map(&req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}

// Map builds the schema's mappers and folds every row.
func (h *Handler) Map(req *MapRequest) (*MapResponse, error) {
	if len(req.Rows) == 0 {
		return nil, fmt.Errorf("rows are required")
	}
	if len(req.Rows) > MaxRows {
		return nil, fmt.Errorf("too many rows: %d (max %d)", len(req.Rows), MaxRows)
	}
	mappers, err := req.Schema.Build(h.engine, h.overlay, h.logger)
	if err != nil {
		return nil, err
	}

	out := make([][]*phenotype.HpTerm, len(req.Rows))
	for i, row := range req.Rows {
		terms := MapRow(mappers, row)
		if terms == nil {
			terms = []*phenotype.HpTerm{}
		}
		out[i] = terms
	}
	return &MapResponse{Rows: out}, nil
}
