package ntpsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, []string{"pool.ntp.org"}, cfg.Servers)
	assert.Equal(t, time.Hour, cfg.SyncInterval)
	assert.Equal(t, 4, cfg.SampleCount)
	assert.Equal(t, 200*time.Millisecond, cfg.SampleSpacing)
}

func TestNtpToTime(t *testing.T) {
	// 2208988800 is exactly the Unix epoch in NTP seconds.
	got := ntpToTime(ntpEpochOffset, 0)
	assert.Equal(t, int64(0), got.Unix())
}

func TestMedianDuration(t *testing.T) {
	ds := []time.Duration{
		300 * time.Millisecond,
		100 * time.Millisecond,
		200 * time.Millisecond,
	}
	assert.Equal(t, 200*time.Millisecond, medianDuration(ds))

	single := []time.Duration{50 * time.Millisecond}
	assert.Equal(t, 50*time.Millisecond, medianDuration(single))
}

func TestQueryOffset_UnreachableServer(t *testing.T) {
	_, err := queryOffset("127.0.0.1")
	assert.Error(t, err)
}
