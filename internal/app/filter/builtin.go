package filter

// Builtin returns the filters every enqueue request goes through, in order.
func Builtin(sizeLimit int) []Filter {
	return []Filter{
		&NotOngoingFilter{},
		&AddDisabledFilter{},
		NewPlaylistFullFilter(sizeLimit),
		&PastStopTimeFilter{},
		&SongDisabledFilter{},
	}
}

// IsBuiltin reports whether the named filter is always part of the chain.
func IsBuiltin(name string) bool {
	for _, f := range Builtin(DefaultPlaylistSizeLimit) {
		if f.Name() == name {
			return true
		}
	}
	return false
}

func init() {
	Register("not_ongoing_filter", func() Filter { return &NotOngoingFilter{} })
	Register("add_disabled_filter", func() Filter { return &AddDisabledFilter{} })
	Register("playlist_full_filter", func() Filter { return NewPlaylistFullFilter(DefaultPlaylistSizeLimit) })
	Register("past_stop_time_filter", func() Filter { return &PastStopTimeFilter{} })
	Register("song_disabled_filter", func() Filter { return &SongDisabledFilter{} })
}
