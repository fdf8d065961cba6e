package proxypool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewFallsBackToSysWhenNoProxiesConfigured(t *testing.T) {
	p := New(Config{}, DefaultTuning())
	client := p.General()
	assert.NotNil(t, client)
	assert.Same(t, client, p.Get("sys"))
}

func TestGetFallsBackToGeneralForUnknownName(t *testing.T) {
	p := New(Config{
		Proxies: map[string]SingleProxy{"a": {Kind: Non}},
		General: "a",
	}, DefaultTuning())

	assert.Same(t, p.Get("a"), p.Get("unknown-name"))
}

func TestReconfigureReusesClientsForUnchangedProxies(t *testing.T) {
	cfg := Config{
		Proxies: map[string]SingleProxy{"a": {Kind: Non}, "b": {Kind: Sys}},
		General: "a",
	}
	p := New(cfg, DefaultTuning())
	before := p.Get("a")

	p.Reconfigure(cfg)
	after := p.Get("a")

	assert.Same(t, before, after)
}

func TestReconfigureDropsRemovedProxies(t *testing.T) {
	p := New(Config{
		Proxies: map[string]SingleProxy{"a": {Kind: Non}, "b": {Kind: Sys}},
		General: "a",
	}, DefaultTuning())

	p.Reconfigure(Config{
		Proxies: map[string]SingleProxy{"a": {Kind: Non}},
		General: "a",
	})

	// "b" is gone; Get falls back to the general client instead of panicking.
	assert.Same(t, p.Get("a"), p.Get("b"))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "non", Non.String())
	assert.Equal(t, "sys", Sys.String())
	assert.Equal(t, "url", Url.String())
}

func TestNewWithZeroConnectRateDisablesGuard(t *testing.T) {
	tuning := DefaultTuning()
	tuning.ConnectRatePerSec = 0
	p := New(Config{}, tuning)
	assert.Nil(t, p.connect)
}

func TestNewWithConnectRateBuildsLimiter(t *testing.T) {
	tuning := DefaultTuning()
	p := New(Config{}, tuning)
	assert.NotNil(t, p.connect)
}
