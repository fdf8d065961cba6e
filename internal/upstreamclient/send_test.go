package upstreamclient

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mixaill76/cursor-gateway/internal/cursorerr"
)

func TestSendClassifiesTimeoutAsGatewayTimeout(t *testing.T) {
	client := &http.Client{Timeout: time.Nanosecond}
	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://127.0.0.1:1/", nil)
	assert.NoError(t, err)

	_, sendErr := Send(client, req)
	assert.Error(t, sendErr)
	assert.Equal(t, http.StatusGatewayTimeout, cursorerr.Status(sendErr))
}

func TestSendClassifiesConnectionRefusedAsUpstreamTransport(t *testing.T) {
	client := &http.Client{Timeout: time.Minute}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://127.0.0.1:1/", nil)
	assert.NoError(t, err)

	_, sendErr := Send(client, req)
	assert.Error(t, sendErr)
	assert.Equal(t, cursorerr.ClassUpstreamFailure, cursorerr.ClassOf(sendErr))
}
