package idx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew_Unique(t *testing.T) {
	seen := make(map[ID]bool)
	for range 1000 {
		id := New()
		require.False(t, seen[id], "duplicate id generated: %s", id)
		seen[id] = true
	}
}

func TestNew_Sortable(t *testing.T) {
	a := NewAt(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	b := NewAt(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	require.Less(t, a.String(), b.String())
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", New().String(), false},
		{"valid with whitespace", " " + New().String() + " ", false},
		{"empty", "", true},
		{"garbage", "not-a-ulid", true},
		{"too short", "01ARZ3NDEKTSV4RRFFQ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := Parse(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalid)
				require.True(t, id.IsZero())
				return
			}
			require.NoError(t, err)
			require.False(t, id.IsZero())
		})
	}
}

func TestID_Time(t *testing.T) {
	at := time.Date(2025, 3, 15, 12, 30, 0, 0, time.UTC)
	id := NewAt(at)
	require.WithinDuration(t, at, id.Time(), time.Millisecond)

	require.True(t, Zero.Time().IsZero())
}
