package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Dosada05/bracket-picks/middleware"
	"github.com/Dosada05/bracket-picks/services"
)

type AuthHandler struct {
	authService services.AuthService
	jwtSecret   []byte
	tokenTTL    time.Duration
}

func NewAuthHandler(authService services.AuthService, jwtSecret string, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		jwtSecret:   []byte(jwtSecret),
		tokenTTL:    tokenTTL,
	}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input services.LoginInput

	err := readJSON(w, r, &input)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	errs := map[string]string{}
	if strings.TrimSpace(input.Username) == "" {
		errs["username"] = "must be provided"
	}
	if input.Password == "" {
		errs["password"] = "must be provided"
	}
	if len(errs) > 0 {
		failedValidationResponse(w, r, errs)
		return
	}

	user, err := h.authService.Login(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	tokenString, err := middleware.NewToken(h.jwtSecret, user, h.tokenTTL)
	if err != nil {
		serverErrorResponse(w, r, fmt.Errorf("failed to sign token: %w", err))
		return
	}

	response := jsonResponse{
		"token":      tokenString,
		"expires_in": int(h.tokenTTL.Seconds()),
		"user":       user,
	}

	err = writeJSON(w, http.StatusOK, response, nil)
	if err != nil {
		serverErrorResponse(w, r, err)
	}
}
