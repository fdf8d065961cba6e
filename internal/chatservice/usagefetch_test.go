package chatservice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixaill76/cursor-gateway/internal/cursortoken"
	"github.com/mixaill76/cursor-gateway/internal/requestlog"
	"github.com/mixaill76/cursor-gateway/internal/upstreamclient"
)

func newUsageTestBuilder(t *testing.T) *upstreamclient.Builder {
	t.Helper()
	return upstreamclient.NewBuilder(upstreamclient.HostSet{Primary: "example.invalid", Public: "example.invalid"})
}

func TestRequestFilteredUsageEventsParsesTokenUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"usageEventsDisplay":[{"tokenUsage":{"inputTokens":12,"outputTokens":34}}]}`))
	}))
	defer srv.Close()

	s := &Service{}
	ext := newTestExtToken(t, cursortoken.KindWeb)

	usage, found, retry := s.requestFilteredUsageEvents(context.Background(), ext, srv.URL, []byte(`{}`))
	require.True(t, found)
	assert.False(t, retry)
	assert.Equal(t, requestlog.ChainUsage{InputTokens: 12, OutputTokens: 34}, usage)
}

func TestRequestFilteredUsageEventsRetriesOnEmptyEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"usageEventsDisplay":[]}`))
	}))
	defer srv.Close()

	s := &Service{}
	ext := newTestExtToken(t, cursortoken.KindWeb)

	_, found, retry := s.requestFilteredUsageEvents(context.Background(), ext, srv.URL, []byte(`{}`))
	assert.False(t, found)
	assert.True(t, retry, "an empty event list should be retried, not treated as a hard stop")
}

func TestRequestFilteredUsageEventsRetriesOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := &Service{}
	ext := newTestExtToken(t, cursortoken.KindWeb)

	_, found, retry := s.requestFilteredUsageEvents(context.Background(), ext, srv.URL, []byte(`{}`))
	assert.False(t, found)
	assert.True(t, retry)
}

func TestFetchUsageAsyncNoOpOnUnknownLogID(t *testing.T) {
	s := &Service{Log: requestlog.New()}
	assert.NotPanics(t, func() {
		s.fetchUsageAsync(context.Background(), requestlog.ID{})
	})
}

func TestPollFilteredUsageEventsStopsOnCanceledContext(t *testing.T) {
	s := &Service{Builder: newUsageTestBuilder(t)}
	ext := newTestExtToken(t, cursortoken.KindWeb)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, found := s.pollFilteredUsageEvents(ctx, ext, time.Now())
	assert.False(t, found)
	assert.Less(t, time.Since(start), usagePollInterval, "a canceled context should stop polling before the first sleep elapses")
}
