package rest

import (
	"net/http"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/karabox/internal/domain/player"
	"github.com/osa030/karabox/internal/domain/playlist"
)

type statusReportRequest struct {
	Event        string  `json:"event" validate:"required"`
	EntryID      string  `json:"playlist_entry_id"`
	Timing       float64 `json:"timing" validate:"gte=0"` // Seconds
	ErrorMessage string  `json:"error_message"`
}

func (req statusReportRequest) report() (player.Report, error) {
	ev, err := player.ParseEvent(req.Event)
	if err != nil {
		return player.Report{}, err
	}
	return player.Report{
		Event:   ev,
		EntryID: req.EntryID,
		Timing:  time.Duration(req.Timing * float64(time.Second)),
		Message: req.ErrorMessage,
	}, nil
}

type commandRequest struct {
	Command string `json:"command" validate:"required"`
}

type errorReportRequest struct {
	EntryID      string `json:"playlist_entry_id" validate:"required"`
	ErrorMessage string `json:"error_message"`
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.session.PlayerStatus(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handlePutStatus(w http.ResponseWriter, r *http.Request) {
	var body statusReportRequest
	if !s.decode(w, r, &body) {
		return
	}
	rep, err := body.report()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	st, err := s.session.ReportStatus(r.Context(), userFrom(r.Context()), rep)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	cmd, err := s.session.PendingCommand(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if cmd == nil {
		writeJSON(w, http.StatusOK, map[string]any{"command": nil})
		return
	}
	writeJSON(w, http.StatusOK, cmd)
}

func (s *Server) handlePutCommand(w http.ResponseWriter, r *http.Request) {
	var body commandRequest
	if !s.decode(w, r, &body) {
		return
	}

	cmd, err := s.session.IssueCommand(r.Context(), userFrom(r.Context()), player.CommandKind(body.Command))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cmd)
}

func (s *Server) handleListErrors(w http.ResponseWriter, r *http.Request) {
	errs, err := s.session.PlayerErrors(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[playlist.PlayerError]{Results: errs})
}

func (s *Server) handlePostError(w http.ResponseWriter, r *http.Request) {
	var body errorReportRequest
	if !s.decode(w, r, &body) {
		return
	}

	pe, err := s.session.ReportError(r.Context(), userFrom(r.Context()), body.EntryID, body.ErrorMessage)
	if err != nil {
		s.writeError(w, r, errors.Wrap(err, "report player error"))
		return
	}
	writeJSON(w, http.StatusCreated, pe)
}
