package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sipcard/dispense/internal/api/metrics"
	"github.com/sipcard/dispense/internal/core/domain"
	"github.com/sipcard/dispense/internal/core/ports"
)

type AuthHandler struct {
	authService ports.AuthService
}

func NewAuthHandler(authService ports.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type registerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"max=64"`
	LastName  string `json:"last_name" validate:"max=64"`
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// tokensResponse mirrors the client's stored token record.
type tokensResponse struct {
	AccessToken           string              `json:"access_token"`
	AccessTokenExpiresAt  int64               `json:"access_token_expires_at"`
	RefreshToken          string              `json:"refresh_token"`
	RefreshTokenExpiresAt int64               `json:"refresh_token_expires_at"`
	DisplayName           *domain.DisplayName `json:"display_name,omitempty"`
}

func toTokensResponse(res *ports.AuthResult) tokensResponse {
	out := tokensResponse{
		AccessToken:           res.Tokens.AccessToken,
		AccessTokenExpiresAt:  res.Tokens.AccessTokenExpiresAt,
		RefreshToken:          res.Tokens.RefreshToken,
		RefreshTokenExpiresAt: res.Tokens.RefreshTokenExpiresAt,
	}
	if u := res.User; u != nil && (u.FirstName != "" || u.LastName != "") {
		out.DisplayName = &domain.DisplayName{FirstName: u.FirstName, LastName: u.LastName}
	}
	return out
}

// Register creates a new member account.
//
// @Summary      Register a new user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "User registration details"
// @Success      201   {object}  envelope{data=domain.User}
// @Failure      409   {object}  ErrorBody
// @Failure      422   {object}  ErrorBody
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	user, err := h.authService.Register(c.Request().Context(), ports.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, user)
}

// SignIn authenticates a user and returns an access/refresh token pair.
//
// @Summary      Sign in
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      signInRequest  true  "Credentials"
// @Success      200   {object}  envelope{data=tokensResponse}
// @Failure      401   {object}  ErrorBody
// @Router       /auth/sign-in [post]
func (h *AuthHandler) SignIn(c echo.Context) error {
	var req signInRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	res, err := h.authService.SignIn(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		metrics.SignInsTotal.WithLabelValues(resultLabel(err)).Inc()
		return err
	}
	metrics.SignInsTotal.WithLabelValues("ok").Inc()
	return respond(c, http.StatusOK, toTokensResponse(res))
}

// RefreshToken exchanges the refresh token in the Authorization header for a
// new pair. Each refresh token works once.
//
// @Summary      Refresh tokens
// @Tags         auth
// @Produce      json
// @Param        Authorization  header    string  true  "Bearer <refresh token>"
// @Success      200            {object}  envelope{data=tokensResponse}
// @Failure      401            {object}  ErrorBody
// @Router       /auth/refresh-token [post]
func (h *AuthHandler) RefreshToken(c echo.Context) error {
	token, ok := BearerToken(c.Request())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing refresh token")
	}

	res, err := h.authService.Refresh(c.Request().Context(), token)
	if err != nil {
		metrics.RefreshesTotal.WithLabelValues(resultLabel(err)).Inc()
		return err
	}
	metrics.RefreshesTotal.WithLabelValues("ok").Inc()
	return respond(c, http.StatusOK, toTokensResponse(res))
}

// ForgotPassword starts a password reset. The response is the same whether or
// not the email is registered.
//
// @Summary      Forgot password
// @Tags         auth
// @Accept       json
// @Param        body  body  forgotPasswordRequest  true  "Account email"
// @Success      202
// @Failure      422   {object}  ErrorBody
// @Router       /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotPasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.authService.ForgotPassword(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}

// Profile returns the signed-in user.
//
// @Summary      Current user profile
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  envelope{data=domain.User}
// @Failure      401  {object}  ErrorBody
// @Router       /mobile/users/profile [get]
func (h *AuthHandler) Profile(c echo.Context) error {
	userID, _, err := ctxClaims(c)
	if err != nil {
		return err
	}
	user, err := h.authService.Profile(c.Request().Context(), userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		// The token outlived its account.
		return domain.ErrInvalidToken
	}
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, user)
}

func resultLabel(err error) string {
	if code := domain.CodeOf(err); code != "" {
		return code
	}
	return "error"
}
