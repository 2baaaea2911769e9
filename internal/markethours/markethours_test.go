package markethours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ist(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", s, IST)
	if err != nil {
		panic(err)
	}
	return t
}

func TestNSE_IsOpen(t *testing.T) {
	s, err := NSE("2026-01-26")
	require.NoError(t, err)

	tests := []struct {
		at   string
		want bool
	}{
		{"2026-01-27 09:14", false}, // Tuesday, before open
		{"2026-01-27 09:15", true},
		{"2026-01-27 15:29", true},
		{"2026-01-27 15:30", false}, // close is exclusive
		{"2026-01-26 11:00", false}, // holiday
		{"2026-01-31 11:00", false}, // Saturday
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, s.IsOpen(ist(tc.at)), tc.at)
	}

	// Same instant expressed in UTC.
	assert.True(t, s.IsOpen(ist("2026-01-27 10:00").UTC()))
}

func TestNSE_NextOpen(t *testing.T) {
	s, err := NSE("2026-01-26")
	require.NoError(t, err)

	// Friday evening -> Monday is a holiday -> Tuesday.
	assert.True(t, ist("2026-01-27 09:15").Equal(s.NextOpen(ist("2026-01-23 16:00"))))
	// Before open on a trading day.
	assert.True(t, ist("2026-01-27 09:15").Equal(s.NextOpen(ist("2026-01-27 08:00"))))
}

func TestSession_Status(t *testing.T) {
	s, err := NSE()
	require.NoError(t, err)
	assert.Equal(t, "nse open, closes in 1h30m", s.Status(ist("2026-01-27 14:00")))
	assert.Equal(t, "nse closed, opens Wed 09:15 (17h15m)", s.Status(ist("2026-01-27 16:00")))
}

func TestNewSession_Invalid(t *testing.T) {
	_, err := NewSession("x", time.UTC, 10*time.Hour, 9*time.Hour)
	assert.Error(t, err)
	_, err = NSE("26/01/2026")
	assert.Error(t, err)
}
