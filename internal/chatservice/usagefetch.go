package chatservice

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/mixaill76/cursor-gateway/internal/cursortoken"
	"github.com/mixaill76/cursor-gateway/internal/requestlog"
)

const (
	usagePollAttempts = 5
	usagePollInterval = time.Second

	pathFilteredUsageEvents = "/api/dashboard/get-filtered-usage-events"
)

// fetchUsageAsync is spec.md §4.7 step 7's usage-fetch follow-up: once a
// stream finishes with usage reporting requested and RealUsage enabled,
// poll the upstream "filtered usage events" endpoint with bounded
// retries and, if found, attach the discovered chain usage to the log
// entry (requestlog.PatchUsage).
func (s *Service) fetchUsageAsync(ctx context.Context, logID requestlog.ID) {
	entry, ok := s.Log.Get(logID)
	if !ok {
		return
	}

	usage, found := s.pollFilteredUsageEvents(ctx, &entry.TokenSnapshot, entry.StartedAt)
	if !found {
		return
	}
	s.Log.Update(logID, requestlog.Patch{Kind: requestlog.PatchUsage, Usage: usage})
}

type filteredUsageEventsRequest struct {
	StartMillis int64 `json:"startMillis"`
	Size        int   `json:"size"`
}

type filteredUsageEventsResponse struct {
	UsageEventsDisplay []struct {
		TokenUsage *requestlog.ChainUsage `json:"tokenUsage"`
	} `json:"usageEventsDisplay"`
}

// pollFilteredUsageEvents mirrors the upstream's own bounded poll for
// post-hoc usage accounting: the event a request produced may not be
// indexed yet by the time its stream finishes, so this retries a fixed
// number of times, spaced a second apart, before giving up.
func (s *Service) pollFilteredUsageEvents(ctx context.Context, ext *cursortoken.ExtToken, since time.Time) (requestlog.ChainUsage, bool) {
	hosts := s.Builder.HostsFor(ext.Region)
	url := "https://" + hosts.Primary + pathFilteredUsageEvents

	body, err := json.Marshal(filteredUsageEventsRequest{
		StartMillis: since.UnixMilli(),
		Size:        10,
	})
	if err != nil {
		return requestlog.ChainUsage{}, false
	}

	for i := 0; i < usagePollAttempts; i++ {
		select {
		case <-ctx.Done():
			return requestlog.ChainUsage{}, false
		case <-time.After(usagePollInterval):
		}

		usage, found, retry := s.requestFilteredUsageEvents(ctx, ext, url, body)
		if found {
			return usage, true
		}
		if !retry {
			return requestlog.ChainUsage{}, false
		}
	}
	return requestlog.ChainUsage{}, false
}

// requestFilteredUsageEvents performs one poll attempt. retry reports
// whether a transient failure (network error, non-200, bad body) should
// be retried rather than treated as a hard stop.
func (s *Service) requestFilteredUsageEvents(ctx context.Context, ext *cursortoken.ExtToken, url string, body []byte) (usage requestlog.ChainUsage, found bool, retry bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return requestlog.ChainUsage{}, false, false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+ext.Primary.AsStr())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return requestlog.ChainUsage{}, false, true
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return requestlog.ChainUsage{}, false, true
	}

	var payload filteredUsageEventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return requestlog.ChainUsage{}, false, true
	}
	if len(payload.UsageEventsDisplay) == 0 || payload.UsageEventsDisplay[0].TokenUsage == nil {
		return requestlog.ChainUsage{}, false, true
	}
	return *payload.UsageEventsDisplay[0].TokenUsage, true, false
}
