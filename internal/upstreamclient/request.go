// Package upstreamclient builds the outbound HTTP request to the upstream
// chat-completion service: header assembly, host routing, and the actual
// send (spec.md §4.8).
package upstreamclient

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/mixaill76/cursor-gateway/internal/cursortoken"
	"github.com/mixaill76/cursor-gateway/internal/outbound"
)

func newBodyReader(body []byte) io.Reader {
	return bytes.NewReader(body)
}

const (
	userAgentHeader = "cursor-gateway/1.0 (+chat-completions-bridge)"
	clientVersion   = "1.0.0"
	clientPlatform  = "linux"

	pathStreamChat = "/aiserver.v1.ChatService/StreamUnifiedChatWithTools"
)

// HostSet names the two upstream hosts a request may be routed to
// (spec.md §4.8: "the host is swapped between a primary and a
// reverse-proxied one depending on whether the caller is admin-path or
// public-path").
type HostSet struct {
	Primary string // admin-path callers
	Public  string // public-path callers (reverse-proxied)
}

// regionHosts maps Region to a per-datacenter HostSet override; entries
// absent here fall back to the caller-supplied default HostSet.
type regionHosts map[cursortoken.Region]HostSet

// Builder assembles upstream requests for one deployment's host topology.
type Builder struct {
	Default HostSet
	Regions regionHosts
}

func NewBuilder(defaultHosts HostSet) *Builder {
	return &Builder{Default: defaultHosts, Regions: regionHosts{}}
}

// WithRegion registers a host override for a specific Region.
func (b *Builder) WithRegion(r cursortoken.Region, hosts HostSet) *Builder {
	b.Regions[r] = hosts
	return b
}

func (b *Builder) hostsFor(region cursortoken.Region) HostSet {
	if h, ok := b.Regions[region]; ok {
		return h
	}
	return b.Default
}

// HostsFor exposes hostsFor to other packages that need to address the
// same per-region hosts a built request would use, without building a
// full request (e.g. the usage-fetch follow-up's auxiliary call).
func (b *Builder) HostsFor(region cursortoken.Region) HostSet {
	return b.hostsFor(region)
}

// Build constructs the *http.Request for one chat-completion call.
// adminPath selects the primary host; public callers get the
// reverse-proxied one.
func (b *Builder) Build(ctx context.Context, tok *cursortoken.ExtToken, enc outbound.Encoded, adminPath bool) (*http.Request, error) {
	hosts := b.hostsFor(tok.Region)
	host := hosts.Public
	if adminPath {
		host = hosts.Primary
	}
	url := "https://" + host + pathStreamChat

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, newBodyReader(enc.Body))
	if err != nil {
		return nil, fmt.Errorf("upstreamclient: build request: %w", err)
	}

	applyHeaders(req, tok, enc)
	return req, nil
}

func applyHeaders(req *http.Request, tok *cursortoken.ExtToken, enc outbound.Encoded) {
	req.Header.Set("Authorization", "Bearer "+tok.Primary.AsStr())
	req.Header.Set("Content-Type", "application/connect+proto")
	req.Header.Set("User-Agent", userAgentHeader)
	req.Header.Set("x-cursor-client-version", clientVersion)
	req.Header.Set("x-cursor-platform", clientPlatform)
	req.Header.Set("x-cursor-checksum", hex.EncodeToString(tok.Checksum[:]))
	req.Header.Set("x-cursor-client-key", hex.EncodeToString(tok.ClientKey[:]))
	if tok.ConfigVersion != nil {
		req.Header.Set("x-cursor-config-version", uuid.UUID(*tok.ConfigVersion).String())
	}
	req.Header.Set("x-cursor-timezone", tok.TimeZone)
	req.Header.Set("x-session-id", uuid.UUID(tok.SessionID).String())
	req.Header.Set("x-request-id", uuid.New().String())

	if enc.Gzipped {
		req.Header.Set("Content-Encoding", "gzip")
	}
	req.ContentLength = int64(len(enc.Body))
}
