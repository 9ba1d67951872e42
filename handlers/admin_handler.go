package handlers

import (
	"errors"
	"net/http"

	"github.com/Dosada05/bracket-picks/services"
)

// AdminHandler обслуживает операции администратора: результаты игр, состояние раундов, продвижение сетки.
type AdminHandler struct {
	roundService services.RoundService
	pickService  services.PickService
}

func NewAdminHandler(rs services.RoundService, ps services.PickService) *AdminHandler {
	return &AdminHandler{
		roundService: rs,
		pickService:  ps,
	}
}

func (h *AdminHandler) SubmitPicksForUser(w http.ResponseWriter, r *http.Request) {
	roundID, err := getIDFromURL(r, "roundID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.SubmitPicksInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.UserID <= 0 {
		failedValidationResponse(w, r, map[string]string{"user_id": "must be provided"})
		return
	}
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

func (h *AdminHandler) UpdateRound(w http.ResponseWriter, r *http.Request) {
	roundID, err := getIDFromURL(r, "roundID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.RoundUpdate
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.State == nil && input.PointValue == nil {
		badRequestResponse(w, r, errors.New("nothing to update: provide state and/or point_value"))
		return
	}

	round, err := h.roundService.UpdateRound(r.Context(), roundID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"round": round}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *AdminHandler) AdvanceRound(w http.ResponseWriter, r *http.Request) {
	roundID, err := getIDFromURL(r, "roundID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.roundService.AdvanceRound(r.Context(), roundID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	status := http.StatusCreated
	response := jsonResponse{"round": result.Round, "created": result.Created}
	if !result.Created {
		status = http.StatusOK
		response["notice"] = services.ErrDuplicateRound.Error()
	}

	if err := writeJSON(w, status, response, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *AdminHandler) RecordWinners(w http.ResponseWriter, r *http.Request) {
	roundID, err := getIDFromURL(r, "roundID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Winners map[int]string `json:"winners"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	games, err := h.roundService.RecordWinners(r.Context(), roundID, input.Winners)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"games": games}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *AdminHandler) PickStatus(w http.ResponseWriter, r *http.Request) {
	roundID, err := getIDFromURL(r, "roundID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	status, err := h.pickService.PickStatus(r.Context(), roundID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, status, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// RecordWinner: пустой winner очищает результат игры.
func (h *AdminHandler) RecordWinner(w http.ResponseWriter, r *http.Request) {
	gameID, err := getIDFromURL(r, "gameID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Winner string `json:"winner"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	game, err := h.roundService.RecordWinner(r.Context(), gameID, input.Winner)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"game": game}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

func (h *AdminHandler) SetGameTeams(w http.ResponseWriter, r *http.Request) {
	gameID, err := getIDFromURL(r, "gameID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Team1 string `json:"team1"`
		Team2 string `json:"team2"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	game, err := h.roundService.SetGameTeams(r.Context(), gameID, input.Team1, input.Team2)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"game": game}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
