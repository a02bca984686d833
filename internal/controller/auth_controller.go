package controller

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"CapIot.telemetry/internal/models"
	"CapIot.telemetry/internal/service"
	"CapIot.telemetry/internal/utils"
)

// AuthController handles dashboard sign-in.
type AuthController struct {
	auth   *service.AuthService
	logger zerolog.Logger
}

// NewAuthController creates a new AuthController.
func NewAuthController(auth *service.AuthService, logger zerolog.Logger) *AuthController {
	return &AuthController{
		auth:   auth,
		logger: logger.With().Str("component", "auth_controller").Logger(),
	}
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleSignIn returns {"accessToken": credential} for valid credentials.
func (c *AuthController) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeInvalidFormat, "Invalid request payload", nil, http.StatusBadRequest))
		return
	}
	if req.Email == "" || req.Password == "" {
		utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeMissingParameter, "email and password are required", nil, http.StatusBadRequest))
		return
	}

	credential, err := c.auth.SignIn(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
		utils.RespondWithJSON(w, http.StatusOK, map[string]string{"accessToken": credential})
	case errors.Is(err, service.ErrEmailNotRegistered), errors.Is(err, service.ErrWrongPassword):
		utils.RespondWithError(w, models.NewAPIError(models.ErrorCodeUnauthorized, err.Error(), nil, http.StatusUnauthorized))
	default:
		c.logger.Error().Err(err).Msg("Sign-in failed")
		utils.RespondWithError(w, models.InternalError())
	}
}
