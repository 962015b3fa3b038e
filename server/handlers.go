package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/atomly/atomly/engine"
	"github.com/atomly/atomly/models"
)

const (
	defaultLimit       = 10
	maxLimit           = 100
	defaultHistoryDays = 30
)

type handler struct {
	engine *engine.Engine
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// writeError maps engine errors onto HTTP statuses; anything else is an
// internal failure whose detail stays out of the response.
func writeError(w http.ResponseWriter, err error) {
	var e *engine.Error
	if !errors.As(err, &e) {
		log.Printf("internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Code: "INTERNAL", Message: "internal server error"})
		return
	}

	status := http.StatusInternalServerError
	switch e.Kind {
	case engine.KindValidation:
		status = http.StatusBadRequest
	case engine.KindNotFound:
		status = http.StatusNotFound
	case engine.KindConflict:
		status = http.StatusConflict
	}
	writeJSON(w, status, errorBody{Code: e.Code, Message: e.Message})
}

func pathID(r *http.Request) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(mux.Vars(r)["id"])
}

func queryInt(r *http.Request, key string, def, max int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func (h *handler) createHabit(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req engine.HabitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "BAD_REQUEST", Message: "malformed request body"})
		return
	}
	habit, err := h.engine.CreateHabit(r.Context(), uid, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, habit)
}

func (h *handler) listHabits(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	habits, err := h.engine.ListHabits(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	if habits == nil {
		habits = []models.Habit{}
	}
	writeJSON(w, http.StatusOK, habits)
}

func (h *handler) updateHabit(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	habitID, err := pathID(r)
	if err != nil {
		writeError(w, engine.ErrHabitNotFound)
		return
	}
	var req engine.HabitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "BAD_REQUEST", Message: "malformed request body"})
		return
	}
	habit, err := h.engine.UpdateHabit(r.Context(), uid, habitID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, habit)
}

func (h *handler) deleteHabit(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	habitID, err := pathID(r)
	if err != nil {
		writeError(w, engine.ErrHabitNotFound)
		return
	}
	if err := h.engine.DeleteHabit(r.Context(), uid, habitID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) deactivateHabit(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	habitID, err := pathID(r)
	if err != nil {
		writeError(w, engine.ErrHabitNotFound)
		return
	}
	habit, err := h.engine.DeactivateHabit(r.Context(), uid, habitID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, habit)
}

type completeBody struct {
	Image         string `json:"image"`
	Notes         string `json:"notes"`
	PublishAsAtom bool   `json:"publishAsAtom"`
}

func (h *handler) completeHabit(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	habitID, err := pathID(r)
	if err != nil {
		writeError(w, engine.ErrHabitNotFound)
		return
	}
	var body completeBody
	if r.Body != nil {
		// An empty body means a plain, unpublished completion.
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	result, err := h.engine.CompleteHabit(r.Context(), habitID, uid, engine.CompleteRequest{
		Image:         body.Image,
		Notes:         body.Notes,
		PublishAsAtom: body.PublishAsAtom,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type voteBody struct {
	VoteType models.VoteType `json:"voteType"`
}

func (h *handler) voteOnAtom(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	atomID, err := pathID(r)
	if err != nil {
		writeError(w, engine.ErrAtomNotFound)
		return
	}
	var body voteBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "BAD_REQUEST", Message: "malformed request body"})
		return
	}
	result, err := h.engine.VoteOnAtom(r.Context(), atomID, uid, body.VoteType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) removeVote(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	atomID, err := pathID(r)
	if err != nil {
		writeError(w, engine.ErrAtomNotFound)
		return
	}
	result, err := h.engine.RemoveVote(r.Context(), atomID, uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) trendingAtoms(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultLimit, maxLimit)
	atoms, err := h.engine.TrendingAtoms(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if atoms == nil {
		atoms = []models.Atom{}
	}
	writeJSON(w, http.StatusOK, atoms)
}

func (h *handler) dailyLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultLimit, maxLimit)
	board, err := h.engine.DailyLeaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *handler) totalLeaderboard(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	limit := queryInt(r, "limit", defaultLimit, maxLimit)
	board, err := h.engine.TotalLeaderboard(r.Context(), uid, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *handler) categoryLeaderboard(w http.ResponseWriter, r *http.Request) {
	categoryID, err := pathID(r)
	if err != nil {
		writeError(w, engine.ErrCategoryNotFound)
		return
	}
	limit := queryInt(r, "limit", defaultLimit, maxLimit)
	board, err := h.engine.CategoryLeaderboard(r.Context(), categoryID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *handler) userKarma(w http.ResponseWriter, r *http.Request) {
	targetID, err := pathID(r)
	if err != nil {
		writeError(w, engine.ErrUserNotFound)
		return
	}
	karma, err := h.engine.UserKarma(r.Context(), targetID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, karma)
}

func (h *handler) userHistory(w http.ResponseWriter, r *http.Request) {
	targetID, err := pathID(r)
	if err != nil {
		writeError(w, engine.ErrUserNotFound)
		return
	}
	days := queryInt(r, "days", defaultHistoryDays, 365)
	history, err := h.engine.UserHistory(r.Context(), targetID, days)
	if err != nil {
		writeError(w, err)
		return
	}
	if history == nil {
		history = []engine.HistoryPoint{}
	}
	writeJSON(w, http.StatusOK, history)
}
