package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	m := New(true)
	assert.NotNil(t, m)
	assert.True(t, m.enabled)

	m2 := New(false)
	assert.NotNil(t, m2)
	assert.False(t, m2.enabled)
}

func TestRecordRequest_Enabled(t *testing.T) {
	RequestsTotal.Reset()
	RequestDuration.Reset()

	m := New(true)
	m.RecordRequest("/v1/chat/completions", 200, 100*time.Millisecond)
	m.RecordRequest("/v1/chat/completions", 500, 150*time.Millisecond)

	assert.Greater(t, testutil.CollectAndCount(RequestsTotal), 0)
	assert.Greater(t, testutil.CollectAndCount(RequestDuration), 0)
}

func TestRecordRequest_Disabled(t *testing.T) {
	m := New(false)
	m.RecordRequest("/v1/chat/completions", 200, 100*time.Millisecond)
}

func TestUpdateTokenPoolSize(t *testing.T) {
	m := New(true)
	m.UpdateTokenPoolSize(10, 2)
	assert.Equal(t, 10.0, testutil.ToFloat64(TokensTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(TokensUnhealthy))
}

func TestUpdateTokenPoolSize_Disabled(t *testing.T) {
	m := New(false)
	m.UpdateTokenPoolSize(5, 1)
}

func TestRecordTokenFailure(t *testing.T) {
	TokenFailuresTotal.Reset()
	TokenCooldownEvents.Reset()

	m := New(true)
	m.RecordTokenFailure("alice", false)
	m.RecordTokenFailure("alice", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(TokenFailuresTotal.WithLabelValues("alice")))
	assert.Equal(t, 1.0, testutil.ToFloat64(TokenCooldownEvents.WithLabelValues("alice")))
}

func TestUpdateProxyPoolSize(t *testing.T) {
	m := New(true)
	m.UpdateProxyPoolSize(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(ProxyPoolSize))
}

func TestRecordRequestLogOutcome(t *testing.T) {
	RequestLogEntries.Reset()

	m := New(true)
	m.RecordRequestLogOutcome("success")
	m.RecordRequestLogOutcome("failure")
	m.RecordRequestLogOutcome("success")

	assert.Equal(t, 2.0, testutil.ToFloat64(RequestLogEntries.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(RequestLogEntries.WithLabelValues("failure")))
}
