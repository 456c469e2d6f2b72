package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/osa030/karabox/internal/domain/playlist"
)

type enqueueRequest struct {
	SongID          string `json:"song_id" validate:"required"`
	UseInstrumental bool   `json:"use_instrumental"`
}

// reorderRequest places an entry before or after another one.
type reorderRequest struct {
	BeforeID string `json:"before_id" validate:"required_without=AfterID,excluded_with=AfterID"`
	AfterID  string `json:"after_id" validate:"required_without=BeforeID"`
}

type listResponse[T any] struct {
	Results []T `json:"results"`
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	sched, err := s.session.Schedule(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var body enqueueRequest
	if !s.decode(w, r, &body) {
		return
	}

	e, err := s.session.Enqueue(r.Context(), userFrom(r.Context()), body.SongID, body.UseInstrumental)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	var body reorderRequest
	if !s.decode(w, r, &body) {
		return
	}

	refID, before := body.AfterID, false
	if body.BeforeID != "" {
		refID, before = body.BeforeID, true
	}
	err := s.session.Reorder(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id"), refID, before)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Delete(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPlayed(w http.ResponseWriter, r *http.Request) {
	played, err := s.session.Played(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[playlist.Entry]{Results: played})
}

func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	d, err := s.session.Digest(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
