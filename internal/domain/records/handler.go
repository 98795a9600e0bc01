package records

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/his/his/internal/platform/auth"
	"github.com/his/his/pkg/access"
	"github.com/his/his/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts one collection per kind. Each collection is guarded by
// its module; writes are additionally guarded by the kind's actions.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/dashboard", h.Dashboard, auth.RequireModule(access.ModuleDashboard))

	for _, k := range h.svc.Kinds().All() {
		g := api.Group("/"+k.Name, auth.RequireModule(k.Module))
		g.GET("", h.List(k))
		g.GET("/:id", h.Get(k))
		g.POST("", h.Create(k), guard(k.CreateAction)...)
		g.PATCH("/:id", h.Patch(k), guard(k.UpdateAction)...)
		if k.Deletable() {
			g.DELETE("/:id", h.Delete(k), auth.RequireAction(k.DeleteAction))
		}
	}
}

func guard(a access.Action) []echo.MiddlewareFunc {
	if a == "" {
		return nil
	}
	return []echo.MiddlewareFunc{auth.RequireAction(a)}
}

func (h *Handler) Dashboard(c echo.Context) error {
	role := auth.RoleFromContext(c.Request().Context())
	summary, err := h.svc.Summary(c.Request().Context(), role)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) List(k Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		p := pagination.FromContext(c)
		docs, total, err := h.svc.List(c.Request().Context(), k.Name, p.Limit, p.Offset)
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(docs, total, p.Limit, p.Offset))
	}
}

func (h *Handler) Get(k Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
		}
		doc, err := h.svc.Get(c.Request().Context(), k.Name, id)
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(http.StatusOK, doc)
	}
}

func (h *Handler) Create(k Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return err
		}
		doc, err := h.svc.Create(c.Request().Context(), actorFrom(c), k.Name, raw)
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(http.StatusCreated, doc)
	}
}

func (h *Handler) Patch(k Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
		}
		raw, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return err
		}
		doc, err := h.svc.Patch(c.Request().Context(), actorFrom(c), k.Name, id, raw)
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(http.StatusOK, doc)
	}
}

func (h *Handler) Delete(k Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
		}
		if err := h.svc.Delete(c.Request().Context(), actorFrom(c), k.Name, id); err != nil {
			return toHTTPError(err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func actorFrom(c echo.Context) Actor {
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == nil {
		return Actor{}
	}
	return Actor{ID: p.UserID, Role: p.Role}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	case errors.Is(err, ErrUnknownKind):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotDeletable):
		return echo.NewHTTPError(http.StatusMethodNotAllowed, err.Error())
	case errors.Is(err, ErrInvalidBody):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return err
}
