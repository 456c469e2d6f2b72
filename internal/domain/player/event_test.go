package player

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	for _, e := range Events {
		got, err := ParseEvent(string(e))
		require.NoError(t, err)
		assert.Equal(t, e, got)
	}

	_, err := ParseEvent("rewinded")
	assert.True(t, errors.Is(err, ErrUnknownEvent))
}

func TestEvent_AllowedWhenIdle(t *testing.T) {
	allowed := map[Event]bool{
		EventStartedTransition: true,
		EventCouldNotPlay:      true,
	}
	for _, e := range Events {
		assert.Equal(t, allowed[e], e.AllowedWhenIdle(), "event %s", e)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input   string
		want    CommandKind
		wantErr bool
	}{
		{input: "play", want: CommandPlay},
		{input: "pause", want: CommandPause},
		{input: "skip", want: CommandSkip},
		{input: "rewind", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCommand(tt.input)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrUnknownCommand))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
