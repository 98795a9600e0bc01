package identity

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/his/his/internal/platform/auth"
	"github.com/his/his/pkg/access"
	"github.com/his/his/pkg/hisapi"
	"github.com/his/his/pkg/pagination"
)

type Handler struct {
	svc         *Service
	issuer      *auth.Issuer
	revocations auth.RevocationStore
	logger      zerolog.Logger
}

func NewHandler(svc *Service, issuer *auth.Issuer, revocations auth.RevocationStore, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, issuer: issuer, revocations: revocations, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/auth/login", h.Login)
	api.POST("/auth/logout", h.Logout)
	api.GET("/auth/me", h.Me)
	api.GET("/navigation", h.Navigation)

	users := api.Group("/users", auth.RequireModule(access.ModuleUsers))
	users.GET("", h.ListUsers)
	users.GET("/:id", h.GetUser)
	users.POST("", h.InviteUser, auth.RequireAction(access.ActionInviteUser))
	users.PATCH("/:id/role", h.ChangeRole, auth.RequireAction(access.ActionChangeRole))
}

func (h *Handler) Login(c echo.Context) error {
	var req hisapi.LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := hisapi.ValidateCreate(&req); err != nil {
		return err
	}

	acct, err := h.svc.Authenticate(c.Request().Context(), req.Username, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		h.logger.Info().Str("username", req.Username).Msg("login rejected")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid username or password")
	}
	if err != nil {
		return err
	}

	token, _, err := h.issuer.IssueUnrevoked(c.Request().Context(), h.revocations, acct.ToUser())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, hisapi.LoginResponse{User: acct.ToUser(), Token: token})
}

// Logout revokes the token that authenticated the request.
func (h *Handler) Logout(c echo.Context) error {
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	if err := h.revocations.Revoke(c.Request().Context(), p.TokenID, p.ExpiresAt); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the caller's current identity from the account store, so a role
// change is visible even before the caller's token is replaced.
func (h *Handler) Me(c echo.Context) error {
	acct, err := h.principalAccount(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, acct.ToUser())
}

func (h *Handler) Navigation(c echo.Context) error {
	role := auth.RoleFromContext(c.Request().Context())
	nav := hisapi.Navigation{Role: role, Modules: []hisapi.ModuleRef{}}
	for _, m := range access.VisibleModules(role) {
		nav.Modules = append(nav.Modules, hisapi.ModuleRef{ID: m.ID, Label: m.Label})
	}
	if len(nav.Modules) > 0 {
		nav.Default = access.DefaultModule
	}
	return c.JSON(http.StatusOK, nav)
}

func (h *Handler) ListUsers(c echo.Context) error {
	p := pagination.FromContext(c)
	accounts, total, err := h.svc.List(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return err
	}
	views := make([]AccountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, a.View())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(views, total, p.Limit, p.Offset))
}

func (h *Handler) GetUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	acct, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, acct.View())
}

func (h *Handler) InviteUser(c echo.Context) error {
	var req hisapi.InviteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	actor := auth.RoleFromContext(c.Request().Context())
	acct, err := h.svc.Invite(c.Request().Context(), actor, req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, acct.View())
}

func (h *Handler) ChangeRole(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req hisapi.RoleChangeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	actor := auth.RoleFromContext(c.Request().Context())
	acct, err := h.svc.ChangeRole(c.Request().Context(), actor, id, req.Role)
	if err != nil {
		return toHTTPError(err)
	}
	h.logger.Info().Str("user_id", id.String()).Str("role", string(acct.Role)).Msg("role changed")
	return c.JSON(http.StatusOK, acct.View())
}

func (h *Handler) principalAccount(c echo.Context) (*Account, error) {
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	id, err := uuid.Parse(p.UserID)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token subject")
	}
	acct, err := h.svc.Get(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) || (err == nil && !acct.Active) {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "account is no longer active")
	}
	if err != nil {
		return nil, err
	}
	return acct, nil
}

func toHTTPError(err error) error {
	var perr *PermissionError
	var verr *hisapi.ValidationError
	switch {
	case errors.As(err, &verr):
		return err
	case errors.As(err, &perr):
		return echo.NewHTTPError(http.StatusForbidden, perr.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	case errors.Is(err, ErrUsernameTaken):
		return echo.NewHTTPError(http.StatusConflict, "username already exists")
	}
	return err
}
