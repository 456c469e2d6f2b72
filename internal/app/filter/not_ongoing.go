package filter

import (
	"context"

	"github.com/osa030/karabox/internal/domain/user"
)

// NotOngoingFilter rejects every request while the karaoke is stopped.
type NotOngoingFilter struct{}

func (f *NotOngoingFilter) Name() string {
	return "not_ongoing_filter"
}

func (f *NotOngoingFilter) Description() string {
	return "Checks if the karaoke is ongoing"
}

func (f *NotOngoingFilter) ReturnCodes() []string {
	return []string{CodeNotOngoing}
}

func (f *NotOngoingFilter) ValidateConfig(settings map[string]any) error {
	return nil
}

func (f *NotOngoingFilter) AppliesTo(u user.User) bool {
	return true
}

func (f *NotOngoingFilter) Check(ctx context.Context, req EntryRequest) Result {
	if !req.Karaoke.Ongoing {
		return Reject(CodeNotOngoing)
	}
	return Accept()
}
