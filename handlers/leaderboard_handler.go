package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/Dosada05/bracket-picks/middleware"
	"github.com/Dosada05/bracket-picks/services"
)

type LeaderboardHandler struct {
	leaderboardService services.LeaderboardService
}

func NewLeaderboardHandler(ls services.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{leaderboardService: ls}
}

func (h *LeaderboardHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.leaderboardService.Leaderboard(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"leaderboard": entries}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Stats отдаёт общую статистику турнира и самые неожиданные верные прогнозы (?upsets=N).
func (h *LeaderboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	limit := services.DefaultUpsetLimit
	if raw := r.URL.Query().Get("upsets"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequestResponse(w, r, fmt.Errorf("invalid upsets value: %q", raw))
			return
		}
		limit = n
	}

	stats, err := h.leaderboardService.TournamentStats(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	upsets, err := h.leaderboardService.UpsetPicks(r.Context(), limit)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": stats, "upset_picks": upsets}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Bracket includes the caller's own picks when the request is authenticated.
func (h *LeaderboardHandler) Bracket(w http.ResponseWriter, r *http.Request) {
	viewerID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		viewerID = 0
	}

	bracket, err := h.leaderboardService.Bracket(r.Context(), viewerID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, bracket, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *LeaderboardHandler) GameDistribution(w http.ResponseWriter, r *http.Request) {
	gameID, err := getIDFromURL(r, "gameID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	distribution, err := h.leaderboardService.PickDistribution(r.Context(), gameID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"distribution": distribution}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
