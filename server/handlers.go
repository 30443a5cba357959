package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/escribo/escribo-web/escribo"
)

// Service is the Escribo API surface the HTTP front exposes.
type Service interface {
	GetGarment(ctx context.Context, slug string) (*escribo.Garment, error)
	GetProfile(ctx context.Context, id string) (*escribo.Profile, error)
	GenerateBatch(ctx context.Context, token string, count int) (*escribo.Batch, error)
}

// BatchRequest is the body of POST /api/admin/batches.
type BatchRequest struct {
	Count int `json:"count" validate:"min=1,max=1000"`
}

// GarmentView is the garment page payload.
type GarmentView struct {
	*escribo.Garment
	HasStory bool `json:"has_story"`
}

type handlers struct {
	svc Service
}

func (h *handlers) register(g *echo.Group) {
	g.GET("/garments/:slug", h.getGarment)
	g.GET("/profiles/:id", h.getProfile)
	g.POST("/admin/batches", h.createBatch)
}

func (h *handlers) getGarment(c echo.Context) error {
	g, err := h.svc.GetGarment(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return mapError(err, "garment")
	}
	return formatSuccessResponse(c, http.StatusOK, GarmentView{Garment: g, HasStory: g.HasStory()})
}

func (h *handlers) getProfile(c echo.Context) error {
	p, err := h.svc.GetProfile(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err, "profile")
	}
	return formatSuccessResponse(c, http.StatusOK, p)
}

func (h *handlers) createBatch(c echo.Context) error {
	token := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if token == "" {
		return NewUnauthorizedError("Bearer token required")
	}

	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("Invalid request data").WithDetails("error", err.Error())
	}
	if err := c.Validate(&req); err != nil {
		apiErr := NewBadRequestError("Request validation failed")
		var ve *ValidationError
		if errors.As(err, &ve) {
			return apiErr.WithDetails("validationErrors", ve.Errors)
		}
		return apiErr.WithDetails("error", err.Error())
	}

	batch, err := h.svc.GenerateBatch(c.Request().Context(), token, req.Count)
	if err != nil {
		return mapError(err, "batch")
	}
	return writeAttachment(c, batch.Filename, batch.ContentType, batch.Archive)
}

// bearerToken extracts the token from an Authorization header value.
func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
