package game

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"quiz-live/internal/errors"
	"quiz-live/internal/models"
)

// Handler is the HTTP surface of the session registry, consumed by the UI
// layer: create, join, inspect and destroy sessions. Round-level commands
// travel over the WebSocket transport instead.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/api/game", h.CreateGame).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/game/{gameCode}", h.GetGame).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/game/{gameCode}", h.DestroyGame).Methods(http.MethodDelete)
	r.HandleFunc("/api/game/{gameCode}/join", h.JoinGame).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/game/{gameCode}/reset", h.ResetGame).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/game/{gameCode}/leaderboard", h.GetLeaderboard).Methods(http.MethodGet, http.MethodOptions)
}

type createGameRequest struct {
	HostID   string           `json:"hostId"`
	Settings *models.Settings `json:"settings,omitempty"`
}

type createGameResponse struct {
	GameCode string          `json:"gameCode"`
	HostID   string          `json:"hostId"`
	Settings models.Settings `json:"settings"`
}

func (h *Handler) CreateGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.HostID == "" {
		req.HostID = uuid.NewString()
	}

	sess := h.service.CreateGame(req.HostID, req.Settings)

	writeJSON(w, http.StatusCreated, createGameResponse{
		GameCode: sess.Code(),
		HostID:   req.HostID,
		Settings: sess.Settings(),
	})
}

type joinGameRequest struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

func (h *Handler) JoinGame(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["gameCode"]

	var req joinGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.PlayerID == "" {
		req.PlayerID = uuid.NewString()
	}

	p, err := h.service.JoinGame(code, req.PlayerID, req.PlayerName)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p.ToDTO())
}

type gameStateResponse struct {
	GameCode    string              `json:"gameCode"`
	State       models.GameState    `json:"state"`
	Settings    models.Settings     `json:"settings"`
	Players     []models.PlayerDTO  `json:"players"`
	Index       int                 `json:"questionIndex"`
	Total       int                 `json:"questionTotal"`
	CurrentQues *models.QuestionDTO `json:"currentQuestion,omitempty"`
}

func (h *Handler) GetGame(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["gameCode"]

	sess, err := h.service.Registry().Lookup(code)
	if err != nil {
		writeError(w, err)
		return
	}

	players := sess.Players()
	dtos := make([]models.PlayerDTO, len(players))
	for i, p := range players {
		dtos[i] = p.ToDTO()
	}

	resp := gameStateResponse{
		GameCode: sess.Code(),
		State:    sess.State(),
		Settings: sess.Settings(),
		Players:  dtos,
		Index:    sess.QuestionIndex(),
		Total:    sess.QuestionCount(),
	}
	if q := sess.CurrentQuestion(); q != nil && sess.State() == models.StatePlaying {
		dto := q.ToDTO(false)
		resp.CurrentQues = &dto
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) DestroyGame(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["gameCode"]

	existed := h.service.DestroyGame(code)
	writeJSON(w, http.StatusOK, map[string]bool{"destroyed": existed})
}

// ResetGame returns a finished session to the lobby for a rematch.
func (h *Handler) ResetGame(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["gameCode"]

	if err := h.service.ResetGame(code); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]models.GameState{"state": models.StateWaiting})
}

func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["gameCode"]

	sess, err := h.service.Registry().Lookup(code)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sess.Leaderboard())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a typed error to its HTTP status with a displayable
// message.
func writeError(w http.ResponseWriter, err error) {
	e := errors.Convert(err)
	writeJSON(w, e.HTTPStatusCode(), map[string]any{
		"code":    e.Code,
		"message": e.Message,
	})
}
