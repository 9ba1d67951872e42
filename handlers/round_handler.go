package handlers

import (
	"net/http"

	"github.com/Dosada05/bracket-picks/services"
)

type RoundHandler struct {
	roundService services.RoundService
	pickService  services.PickService
}

func NewRoundHandler(rs services.RoundService, ps services.PickService) *RoundHandler {
	return &RoundHandler{
		roundService: rs,
		pickService:  ps,
	}
}

func (h *RoundHandler) ListRounds(w http.ResponseWriter, r *http.Request) {
	rounds, err := h.roundService.ListRounds(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"rounds": rounds}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *RoundHandler) CurrentRound(w http.ResponseWriter, r *http.Request) {
	round, err := h.roundService.CurrentRound(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"round": round}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *RoundHandler) MyPicks(w http.ResponseWriter, r *http.Request) {
	roundID, err := getIDFromURL(r, "roundID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	picks, err := h.pickService.UserRoundPicks(r.Context(), userID, roundID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"picks": picks}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// SubmitPicks сохраняет прогнозы текущего пользователя. user_id из тела игнорируется.
func (h *RoundHandler) SubmitPicks(w http.ResponseWriter, r *http.Request) {
	roundID, err := getIDFromURL(r, "roundID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var input services.SubmitPicksInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	input.UserID = userID
	input.RoundID = roundID

	picks, err := h.pickService.SubmitPicks(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"picks": picks}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
