package upstreamclient

import (
	"errors"
	"net"
	"net/http"

	"github.com/mixaill76/cursor-gateway/internal/cursorerr"
)

// Send performs the request and classifies transport failures per
// spec.md §4.7 step 5: timeouts become GatewayTimeout, anything else
// becomes an InternalServerError-flavored UpstreamFailure.
func Send(client *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req)
	if err == nil {
		return resp, nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return nil, cursorerr.GatewayTimeout(err)
	}
	return nil, cursorerr.UpstreamTransport(err)
}
