package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Dosada05/bracket-picks/services"
	"github.com/go-chi/chi/v5"
)

const maxAvatarSize = 5 << 20

type UserHandler struct {
	userService        services.UserService
	leaderboardService services.LeaderboardService
}

func NewUserHandler(us services.UserService, ls services.LeaderboardService) *UserHandler {
	return &UserHandler{
		userService:        us,
		leaderboardService: ls,
	}
}

func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	stats, err := h.leaderboardService.UserProfileStats(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, stats, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *UserHandler) GetUserPicks(w http.ResponseWriter, r *http.Request) {
	picks, err := h.leaderboardService.UserPicks(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, picks, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	currentUserID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var input services.UpdateProfileInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	user, err := h.userService.UpdateProfile(r.Context(), currentUserID, chi.URLParam(r, "username"), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"user": user}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	currentUserID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarSize+1024)
	if err := r.ParseMultipartForm(maxAvatarSize); err != nil {
		badRequestResponse(w, r, fmt.Errorf("failed to parse multipart form: %w", err))
		return
	}

	file, header, err := r.FormFile("avatar")
	if err != nil {
		badRequestResponse(w, r, fmt.Errorf("failed to get avatar file from form: %w", err))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		badRequestResponse(w, r, fmt.Errorf("avatar must be an image, got %q", contentType))
		return
	}

	user, err := h.userService.UploadAvatar(r.Context(), currentUserID, chi.URLParam(r, "username"), contentType, file)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"user": user}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
