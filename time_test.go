package auth_test

import (
	"testing"
	"time"

	auth "github.com/goliatone/go-clinic-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsWithinThresholdPeriod(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		inputTime time.Time
		period    time.Duration
		expected  bool
	}{
		{
			name:      "Within 1 hour threshold",
			inputTime: now.Add(-30 * time.Minute),
			period:    time.Hour,
			expected:  true,
		},
		{
			name:      "Outside 1 hour threshold",
			inputTime: now.Add(-90 * time.Minute),
			period:    time.Hour,
			expected:  false,
		},
		{
			name:      "Exactly on the boundary",
			inputTime: now.Add(-24 * time.Hour),
			period:    24 * time.Hour,
			expected:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, auth.IsWithinThresholdPeriod(tt.inputTime, tt.period, now))
			assert.Equal(t, !tt.expected, auth.IsOutsideThresholdPeriod(tt.inputTime, tt.period, now))
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in       string
		expected time.Duration
		wantErr  bool
	}{
		{in: "15m", expected: 15 * time.Minute},
		{in: "7d", expected: 7 * 24 * time.Hour},
		{in: " 30d ", expected: 30 * 24 * time.Hour},
		{in: "2s", expected: 2 * time.Second},
		{in: "xd", wantErr: true},
		{in: "soon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := auth.ParseDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
