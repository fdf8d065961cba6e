// Package statefile implements the persisted state layout of spec.md
// §6.5: the tokens file and proxies file, each replaced atomically (full
// write to a temp file, then rename into place) so a crash mid-write
// never corrupts the file a concurrent reader might open.
package statefile

import (
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/mixaill76/cursor-gateway/internal/cursortoken"
	"github.com/mixaill76/cursor-gateway/internal/proxypool"
	"github.com/mixaill76/cursor-gateway/internal/tokenmanager"
)

// maxPayloadBytes refuses oversized persisted files per spec.md §6.5
// ("Oversized payloads (> half usize::MAX) are refused").
const maxPayloadBytes = math.MaxInt64 / 2

// TokenRecord is one row of the tokens file.
type TokenRecord struct {
	Alias         string  `yaml:"alias"`
	Token         string  `yaml:"token"`
	Checksum      string  `yaml:"checksum"`
	ClientKey     string  `yaml:"client_key"`
	ConfigVersion *string `yaml:"config_version,omitempty"`
	SessionID     string  `yaml:"session_id"`
	Proxy         string  `yaml:"proxy,omitempty"`
	TimeZone      string  `yaml:"timezone,omitempty"`
	Region        string  `yaml:"region,omitempty"`
	Enabled       bool    `yaml:"enabled"`
	Privileged    bool    `yaml:"privileged"`
	Paid          bool    `yaml:"paid"`
}

type tokensFile struct {
	Tokens []TokenRecord `yaml:"tokens"`
}

// ProxiesFile is the on-disk shape of the proxy pool config: a named map
// of proxy definitions plus the "general" fallback name.
type ProxiesFile struct {
	Proxies map[string]ProxyRecord `yaml:"proxies"`
	General string                 `yaml:"general"`
}

type ProxyRecord struct {
	Kind string `yaml:"kind"` // "non" | "sys" | "url"
	URL  string `yaml:"url,omitempty"`
}

// atomicWrite writes data to a temp file in dir(path) then renames it
// into place, so readers never observe a partially-written file.
func atomicWrite(path string, data []byte) error {
	if len(data) > maxPayloadBytes {
		return fmt.Errorf("statefile: payload too large (%d bytes)", len(data))
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".statefile-*")
	if err != nil {
		return fmt.Errorf("statefile: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("statefile: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("statefile: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("statefile: rename into place: %w", err)
	}
	return nil
}

// LoadTokens reads the tokens file, returning an empty (not-yet-populated)
// manager's worth of nothing if the file does not exist.
func LoadTokens(path string) ([]TokenRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("statefile: read tokens file: %w", err)
	}
	var f tokensFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("statefile: parse tokens file: %w", err)
	}
	return f.Tokens, nil
}

// ToTokenInfo reconstructs a TokenInfo from a persisted record, reversing
// toRecord. Region is looked up by name; an unrecognized name falls back
// to RegionUnspecified rather than failing the whole load.
func (r TokenRecord) ToTokenInfo() (*cursortoken.TokenInfo, tokenmanager.Alias, error) {
	key, expiry, kind, err := cursortoken.Parse(r.Token)
	if err != nil {
		return nil, "", fmt.Errorf("statefile: parse token %q: %w", r.Alias, err)
	}
	tok := cursortoken.New(key, expiry, kind, r.Token)

	ext := cursortoken.ExtToken{
		Primary:  tok,
		Proxy:    r.Proxy,
		TimeZone: r.TimeZone,
		Region:   regionFromString(r.Region),
	}
	if err := decodeFixed(r.Checksum, ext.Checksum[:]); err != nil {
		return nil, "", fmt.Errorf("statefile: checksum for %q: %w", r.Alias, err)
	}
	if err := decodeFixed(r.ClientKey, ext.ClientKey[:]); err != nil {
		return nil, "", fmt.Errorf("statefile: client_key for %q: %w", r.Alias, err)
	}
	if err := decodeFixed(r.SessionID, ext.SessionID[:]); err != nil {
		return nil, "", fmt.Errorf("statefile: session_id for %q: %w", r.Alias, err)
	}
	if r.ConfigVersion != nil {
		var cv [16]byte
		if err := decodeFixed(*r.ConfigVersion, cv[:]); err != nil {
			return nil, "", fmt.Errorf("statefile: config_version for %q: %w", r.Alias, err)
		}
		ext.ConfigVersion = &cv
	}

	return &cursortoken.TokenInfo{
		Ext:        ext,
		Enabled:    r.Enabled,
		Privileged: r.Privileged,
		Paid:       r.Paid,
	}, tokenmanager.Alias(r.Alias), nil
}

func decodeFixed(s string, dst []byte) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != len(dst) {
		return fmt.Errorf("expected %d bytes, got %d", len(dst), len(b))
	}
	copy(dst, b)
	return nil
}

func regionFromString(s string) cursortoken.Region {
	switch s {
	case "asia":
		return cursortoken.RegionAsia
	case "eu":
		return cursortoken.RegionEU
	case "us":
		return cursortoken.RegionUS
	default:
		return cursortoken.RegionUnspecified
	}
}

// SaveTokens snapshots every live slot of m into the tokens file.
func SaveTokens(path string, m *tokenmanager.Manager) error {
	entries := m.List()
	f := tokensFile{Tokens: make([]TokenRecord, 0, len(entries))}
	for _, e := range entries {
		f.Tokens = append(f.Tokens, toRecord(e.Alias, e.Info))
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("statefile: marshal tokens: %w", err)
	}
	return atomicWrite(path, data)
}

func toRecord(alias tokenmanager.Alias, info *cursortoken.TokenInfo) TokenRecord {
	var cv *string
	if info.Ext.ConfigVersion != nil {
		s := fmt.Sprintf("%x", *info.Ext.ConfigVersion)
		cv = &s
	}
	return TokenRecord{
		Alias:         string(alias),
		Token:         info.Ext.Primary.AsStr(),
		Checksum:      fmt.Sprintf("%x", info.Ext.Checksum),
		ClientKey:     fmt.Sprintf("%x", info.Ext.ClientKey),
		ConfigVersion: cv,
		SessionID:     fmt.Sprintf("%x", info.Ext.SessionID),
		Proxy:         info.Ext.Proxy,
		TimeZone:      info.Ext.TimeZone,
		Region:        info.Ext.Region.String(),
		Enabled:       info.Enabled,
		Privileged:    info.Privileged,
		Paid:          info.Paid,
	}
}

// LoadProxies reads the proxies file, returning proxypool's zero Config
// (which New/Reconfigure default to a single "sys" entry) if the file
// does not exist.
func LoadProxies(path string) (proxypool.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return proxypool.Config{}, nil
		}
		return proxypool.Config{}, fmt.Errorf("statefile: read proxies file: %w", err)
	}
	var f ProxiesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return proxypool.Config{}, fmt.Errorf("statefile: parse proxies file: %w", err)
	}
	cfg := proxypool.Config{Proxies: make(map[string]proxypool.SingleProxy, len(f.Proxies)), General: f.General}
	for name, rec := range f.Proxies {
		cfg.Proxies[name] = proxypool.SingleProxy{Kind: kindFromString(rec.Kind), URL: rec.URL}
	}
	return cfg, nil
}

// SaveProxies writes cfg to the proxies file.
func SaveProxies(path string, cfg proxypool.Config) error {
	f := ProxiesFile{Proxies: make(map[string]ProxyRecord, len(cfg.Proxies)), General: cfg.General}
	for name, p := range cfg.Proxies {
		f.Proxies[name] = ProxyRecord{Kind: p.Kind.String(), URL: p.URL}
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("statefile: marshal proxies: %w", err)
	}
	return atomicWrite(path, data)
}

func kindFromString(s string) proxypool.Kind {
	switch s {
	case "sys":
		return proxypool.Sys
	case "url":
		return proxypool.Url
	default:
		return proxypool.Non
	}
}
