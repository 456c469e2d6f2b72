package rest

import (
	"encoding/json"
	"net/http"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/karabox/internal/app/filter"
	"github.com/osa030/karabox/internal/app/session"
)

const codeUnauthenticated = "unauthenticated"

// errorResponse is the body of every failed request.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusByCode maps rejection codes to HTTP statuses. Codes missing here,
// such as those of optional filters, are refusals (403).
var statusByCode = map[string]int{
	filter.CodeNotOngoing:   http.StatusForbidden,
	filter.CodeAddDisabled:  http.StatusForbidden,
	filter.CodePlaylistFull: http.StatusForbidden,
	filter.CodePastStopTime: http.StatusForbidden,
	filter.CodeSongDisabled: http.StatusForbidden,
	"forbidden":             http.StatusForbidden,
	"not_found":             http.StatusNotFound,
	"player_idle":           http.StatusConflict,
	"player_connected":      http.StatusConflict,
	"already_playing":       http.StatusConflict,
	"incoherent_event":      http.StatusBadRequest,
	"unknown_event":         http.StatusBadRequest,
	"unknown_command":       http.StatusBadRequest,
	"invalid_request":       http.StatusBadRequest,
	codeUnauthenticated:     http.StatusUnauthorized,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeCode(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorResponse{Code: code, Message: s.config.GetMessage(code)})
}

// writeError answers with the rejection carried by err, or a 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := session.Code(err)
	if code == "" {
		if session.IsInvariantViolation(err) {
			zlog.Error().Msgf("invariant violated: method=%s path=%s err=%+v", r.Method, r.URL.Path, err)
		} else {
			zlog.Error().Msgf("request failed: method=%s path=%s err=%v", r.Method, r.URL.Path, err)
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Code:    "internal",
			Message: s.config.GetMessage(""),
		})
		return
	}

	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusForbidden
	}
	writeJSON(w, status, errorResponse{Code: code, Message: s.config.GetMessage(code)})
}

// decode reads a JSON body and validates it. It answers the request itself
// and returns false on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeCode(w, http.StatusBadRequest, "invalid_request")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		zlog.Debug().Msgf("invalid request body: path=%s err=%v", r.URL.Path, err)
		s.writeCode(w, http.StatusBadRequest, "invalid_request")
		return false
	}
	return true
}
