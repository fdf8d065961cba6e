package cursorclock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOffsetDefaultsToZero(t *testing.T) {
	assert.Equal(t, time.Duration(0), Offset())
}

func TestSetOffsetAppliesToAdjustedNow(t *testing.T) {
	defer SetOffset(0)

	before := time.Now().UTC()
	SetOffset(time.Hour)
	assert.Equal(t, time.Hour, Offset())

	adjusted := AdjustedNow()
	assert.True(t, adjusted.After(before.Add(59*time.Minute)))
	assert.True(t, adjusted.Before(before.Add(61*time.Minute)))
}

func TestSetOffsetNegative(t *testing.T) {
	defer SetOffset(0)

	SetOffset(-time.Minute)
	assert.Equal(t, -time.Minute, Offset())
}
