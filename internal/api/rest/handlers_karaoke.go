package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/osa030/karabox/internal/domain/karaoke"
)

// optionalTime tells an explicit null apart from an absent field.
type optionalTime struct {
	Set   bool
	Value *time.Time
}

func (o *optionalTime) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(data, []byte("null")) {
		o.Value = nil
		return nil
	}
	var t time.Time
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	o.Value = &t
	return nil
}

type karaokePatchRequest struct {
	Ongoing            *bool        `json:"ongoing"`
	CanAddToPlaylist   *bool        `json:"can_add_to_playlist"`
	PlayerPlayNextSong *bool        `json:"player_play_next_song"`
	DateStop           optionalTime `json:"date_stop"`
}

func (p karaokePatchRequest) patch() karaoke.Patch {
	return karaoke.Patch{
		Ongoing:            p.Ongoing,
		CanAddToPlaylist:   p.CanAddToPlaylist,
		PlayerPlayNextSong: p.PlayerPlayNextSong,
		SetDateStop:        p.DateStop.Set,
		DateStop:           p.DateStop.Value,
	}
}

func (s *Server) handleGetKaraoke(w http.ResponseWriter, r *http.Request) {
	k, err := s.session.Karaoke(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, k)
}

func (s *Server) handlePatchKaraoke(w http.ResponseWriter, r *http.Request) {
	var body karaokePatchRequest
	if !s.decode(w, r, &body) {
		return
	}

	k, err := s.session.UpdateKaraoke(r.Context(), userFrom(r.Context()), body.patch())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, k)
}
