package filter

import (
	"context"

	"github.com/osa030/karabox/internal/domain/user"
)

// PastStopTimeFilter rejects songs that would end after the karaoke stop date.
type PastStopTimeFilter struct{}

func (f *PastStopTimeFilter) Name() string {
	return "past_stop_time_filter"
}

func (f *PastStopTimeFilter) Description() string {
	return "Checks if the song would end before the karaoke stop date"
}

func (f *PastStopTimeFilter) ReturnCodes() []string {
	return []string{CodePastStopTime}
}

func (f *PastStopTimeFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *PastStopTimeFilter) AppliesTo(u user.User) bool {
	// Managers and superusers can queue past the stop date
	return !u.IsPlaylistManager()
}

func (f *PastStopTimeFilter) Check(ctx context.Context, req EntryRequest) Result {
	stop := req.Karaoke.DateStop
	if stop == nil {
		return Accept()
	}

	// The queue may be empty and the stop date already passed
	if req.Now.After(*stop) {
		return Reject(CodePastStopTime)
	}

	end := req.QueueEnd.Add(req.Song.Duration)
	if end.After(*stop) {
		return Reject(CodePastStopTime)
	}
	return Accept()
}
