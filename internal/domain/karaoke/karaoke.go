// Package karaoke provides the KaraokeSession singleton entity.
package karaoke

import "time"

// Karaoke represents the karaoke session flags.
type Karaoke struct {
	Ongoing            bool       `json:"ongoing"`
	CanAddToPlaylist   bool       `json:"can_add_to_playlist"`
	PlayerPlayNextSong bool       `json:"player_play_next_song"`
	DateStop           *time.Time `json:"date_stop"`
	ChannelName        string     `json:"-"` // Transport session owning the player connection
}

// Default returns the session as it is first created.
func Default() Karaoke {
	return Karaoke{
		Ongoing:            true,
		CanAddToPlaylist:   true,
		PlayerPlayNextSong: true,
	}
}

// Patch describes a partial update of the session flags.
// Nil fields are left untouched; DateStop is applied only when SetDateStop is true.
type Patch struct {
	Ongoing            *bool
	CanAddToPlaylist   *bool
	PlayerPlayNextSong *bool
	SetDateStop        bool
	DateStop           *time.Time
}

// Apply returns a copy of k with the patch applied.
func (p Patch) Apply(k Karaoke) Karaoke {
	if p.Ongoing != nil {
		k.Ongoing = *p.Ongoing
	}
	if p.CanAddToPlaylist != nil {
		k.CanAddToPlaylist = *p.CanAddToPlaylist
	}
	if p.PlayerPlayNextSong != nil {
		k.PlayerPlayNextSong = *p.PlayerPlayNextSong
	}
	if p.SetDateStop {
		k.DateStop = p.DateStop
	}
	return k
}

// Halts reports whether applying the patch to k stops the session.
func (p Patch) Halts(k Karaoke) bool {
	return k.Ongoing && p.Ongoing != nil && !*p.Ongoing
}

// DateStopExpired reports whether the stop date is set and reached at now.
func (k Karaoke) DateStopExpired(now time.Time) bool {
	return k.DateStop != nil && !now.Before(*k.DateStop)
}
