package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLocation(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "simple", in: "Delhi", want: "Delhi"},
		{name: "lowercase", in: "mumbai", want: "Mumbai"},
		{name: "extra whitespace", in: "  new   delhi ", want: "New Delhi"},
		{name: "hyphenated", in: "port-au-prince", want: "Port-Au-Prince"},
		{name: "apostrophe", in: "Xi'an", want: "Xi'an"},
		{name: "empty", in: "   ", wantErr: true},
		{name: "digits rejected", in: "Sector 21", wantErr: true},
		{name: "injection rejected", in: "Delhi; drop", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeLocation(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidLocation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadingFreshness(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	r := Reading{CapturedAt: now.Add(-5 * time.Hour)}

	assert.True(t, r.Fresh(now, 6*time.Hour))
	assert.False(t, r.Fresh(now, 4*time.Hour))
	assert.Equal(t, 5*time.Hour, r.Age(now))
}
