package duration

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"15m", 15 * time.Minute},
		{"1h30m", 90 * time.Minute},
		{"2d", 48 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
		{"0.5d", 12 * time.Hour},
		{"30", 30 * time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			d, err := ParseDuration(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, d)
		})
	}

	_, err := ParseDuration("soon")
	assert.Error(t, err)
}

func TestFormatRoundTrip(t *testing.T) {
	for _, d := range []time.Duration{2 * Day, 15 * time.Minute, 25 * time.Hour} {
		got, err := ParseDuration(Format(d))
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
}

func TestDurationVar(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	var d time.Duration
	DurationVar(fs, &d, "delay", time.Minute, "")
	assert.Equal(t, time.Minute, d)

	require.NoError(t, fs.Parse([]string{"--delay", "3d"}))
	assert.Equal(t, 3*Day, d)
	assert.Equal(t, "3d", fs.Lookup("delay").Value.String())
}
