package recognition

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pheno/pheno/internal/platform/auth"
)

// Handler provides REST endpoints for recognition and term lookup.
type Handler struct {
	svc *Service
}

// NewHandler creates a new recognition handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers recognition routes on the API group. With
// requireScopes set, lookups need the terms:read scope and recognition the
// recognize scope; JWTMiddleware must already run on the group.
func (h *Handler) RegisterRoutes(api *echo.Group, requireScopes bool) {
	var read, recognize []echo.MiddlewareFunc
	if requireScopes {
		read = append(read, auth.RequireScope(auth.ScopeRead))
		recognize = append(recognize, auth.RequireScope(auth.ScopeRecognize))
	}

	api.GET("/ontology", h.GetOntology, read...)
	api.GET("/terms", h.SearchTerm, read...)
	api.GET("/terms/:id", h.GetTerm, read...)
	api.GET("/terms/:id/ancestors", h.GetAncestors, read...)
	api.POST("/recognize", h.Recognize, recognize...)
	api.POST("/recognize/batch", h.RecognizeBatch, recognize...)
}

func lookupStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnknownID), errors.Is(err, ErrUnknownLabel):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

// GetOntology handles GET /api/v1/ontology
func (h *Handler) GetOntology(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Info(c.Request().Context()))
}

// SearchTerm handles GET /api/v1/terms?label=...
func (h *Handler) SearchTerm(c echo.Context) error {
	label := c.QueryParam("label")
	if label == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter 'label' is required")
	}
	term, err := h.svc.LookupLabel(c.Request().Context(), label)
	if err != nil {
		return echo.NewHTTPError(lookupStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, term)
}

// GetTerm handles GET /api/v1/terms/:id
func (h *Handler) GetTerm(c echo.Context) error {
	term, err := h.svc.LookupID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(lookupStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, term)
}

// GetAncestors handles GET /api/v1/terms/:id/ancestors
func (h *Handler) GetAncestors(c echo.Context) error {
	terms, err := h.svc.Ancestors(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(lookupStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, terms)
}

// Recognize handles POST /api/v1/recognize
func (h *Handler) Recognize(c echo.Context) error {
	var req RecognizeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	resp, err := h.svc.Recognize(c.Request().Context(), &req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}

// RecognizeBatch handles POST /api/v1/recognize/batch
func (h *Handler) RecognizeBatch(c echo.Context) error {
	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	resp, err := h.svc.RecognizeBatch(c.Request().Context(), &req)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, context.Canceled):
		return err
	case err != nil:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}
