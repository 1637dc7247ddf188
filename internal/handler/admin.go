package handler

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/smartquiz/internal/model"
)

const defaultGenerationLimit = 50

type generationList struct {
	Total       int                `json:"total"`
	Sessions    int                `json:"active_sessions"`
	Generations []model.Generation `json:"generations"`
}

func (h *Handler) handleGenerations(w http.ResponseWriter, r *http.Request) {
	limit := defaultGenerationLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	gens, err := h.store.ListGenerations(limit)
	if err != nil {
		slog.Error("failed to list generations", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	total, err := h.store.GenerationCount()
	if err != nil {
		slog.Error("failed to count generations", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if gens == nil {
		gens = []model.Generation{}
	}
	writeJSON(w, http.StatusOK, generationList{
		Total:       total,
		Sessions:    h.sessions.Len(),
		Generations: gens,
	})
}

func (h *Handler) handleGeneration(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "genID"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid generation ID")
		return
	}
	g, err := h.store.GetGeneration(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeJSONError(w, http.StatusNotFound, "generation not found")
		return
	}
	if err != nil {
		slog.Error("failed to get generation", "id", id, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, g)
}
