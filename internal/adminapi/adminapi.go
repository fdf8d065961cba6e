// Package adminapi implements the administrative token-management
// surface: get/add/delete/refresh/set-status/set-alias/set-proxy/
// set-timezone/merge, each persisting on mutation and reporting
// {status, message} uniformly.
package adminapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mixaill76/cursor-gateway/internal/cursortoken"
	"github.com/mixaill76/cursor-gateway/internal/proxypool"
	"github.com/mixaill76/cursor-gateway/internal/statefile"
	"github.com/mixaill76/cursor-gateway/internal/tokenhealth"
	"github.com/mixaill76/cursor-gateway/internal/tokenmanager"
)

// Handler serves the admin endpoints. Every mutating call persists the
// pool to TokensPath before responding; a persistence failure is reported
// in the response but the in-memory mutation stands (spec.md §7: "Local
// recovery: Persistence I/O failures on admin endpoints are reported but
// do not alter in-memory state").
type Handler struct {
	Tokens  *tokenmanager.Manager
	Health  *tokenhealth.Tracker
	Proxies *proxypool.Pool
	Logger  *slog.Logger

	TokensPath  string
	ProxiesPath string
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeStatus(w http.ResponseWriter, code int, status, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(statusResponse{Status: status, Message: message})
}

func (h *Handler) persistTokens() error {
	if h.TokensPath == "" {
		return nil
	}
	return statefile.SaveTokens(h.TokensPath, h.Tokens)
}

func (h *Handler) persistOrReport(w http.ResponseWriter, okMessage string) {
	if err := h.persistTokens(); err != nil {
		h.Logger.Warn("adminapi: failed to persist tokens", "error", err)
		writeStatus(w, http.StatusOK, "ok", okMessage+" (warning: persistence failed, see logs)")
		return
	}
	writeStatus(w, http.StatusOK, "ok", okMessage)
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// --- GET ----------------------------------------------------------------

type tokenView struct {
	ID         int    `json:"id"`
	Alias      string `json:"alias"`
	Enabled    bool   `json:"enabled"`
	Privileged bool   `json:"privileged"`
	Paid       bool   `json:"paid"`
	Unhealthy  bool   `json:"unhealthy"`
	Kind       string `json:"kind"`
	Proxy      string `json:"proxy,omitempty"`
	TimeZone   string `json:"timezone,omitempty"`
	Region     string `json:"region,omitempty"`
}

// HandleGet returns every live token slot.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	entries := h.Tokens.List()
	out := make([]tokenView, 0, len(entries))
	for _, e := range entries {
		out = append(out, h.toView(e))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
}

// toView reads live unhealthy status from Health rather than a stored
// flag, since cooldowns expire on their own schedule.
func (h *Handler) toView(e tokenmanager.Entry) tokenView {
	var unhealthy bool
	if h.Health != nil {
		unhealthy = h.Health.Unhealthy(e.Info.Ext.Primary.Key())
	}
	return tokenView{
		ID:         e.ID,
		Alias:      string(e.Alias),
		Enabled:    e.Info.Enabled,
		Privileged: e.Info.Privileged,
		Paid:       e.Info.Paid,
		Unhealthy:  unhealthy,
		Kind:       e.Info.Ext.Primary.Kind().String(),
		Proxy:      e.Info.Ext.Proxy,
		TimeZone:   e.Info.Ext.TimeZone,
		Region:     e.Info.Ext.Region.String(),
	}
}

// --- ADD ------------------------------------------------------------------

type addRequest struct {
	Alias      string `json:"alias,omitempty"`
	Token      string `json:"token"`
	Proxy      string `json:"proxy,omitempty"`
	TimeZone   string `json:"timezone,omitempty"`
	Privileged bool   `json:"privileged,omitempty"`
	Paid       bool   `json:"paid,omitempty"`
}

// HandleAdd parses and registers one new token bundle.
func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStatus(w, http.StatusBadRequest, "error", "invalid JSON body")
		return
	}

	key, expiry, kind, err := cursortoken.Parse(req.Token)
	if err != nil {
		writeStatus(w, http.StatusBadRequest, "error", "malformed token")
		return
	}
	tok := cursortoken.New(key, expiry, kind, req.Token)
	info := &cursortoken.TokenInfo{
		Ext: cursortoken.ExtToken{
			Primary:  tok,
			Proxy:    req.Proxy,
			TimeZone: req.TimeZone,
		},
		Enabled:    true,
		Privileged: req.Privileged,
		Paid:       req.Paid,
	}
	info.Ext.RegenerateClientKey()

	if _, err := h.Tokens.Add(info, tokenmanager.Alias(req.Alias)); err != nil {
		writeStatus(w, http.StatusBadRequest, "error", err.Error())
		return
	}
	h.persistOrReport(w, "token added")
}

// --- DELETE -----------------------------------------------------------

type deleteRequest struct {
	Alias string `json:"alias"`
}

// HandleDelete removes one token by alias.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStatus(w, http.StatusBadRequest, "error", "invalid JSON body")
		return
	}
	info, _, err := h.Tokens.GetByAlias(tokenmanager.Alias(req.Alias))
	if err != nil {
		writeStatus(w, http.StatusNotFound, "error", "alias not found")
		return
	}
	_, id, _ := h.Tokens.GetByAlias(tokenmanager.Alias(req.Alias))
	if _, ok := h.Tokens.Remove(id); ok {
		cursortoken.Release(info.Ext.Primary)
		if info.Ext.Secondary != nil {
			cursortoken.Release(info.Ext.Secondary)
		}
	}
	h.persistOrReport(w, "token deleted")
}

// --- SET STATUS ---------------------------------------------------------

type setStatusRequest struct {
	Alias   string `json:"alias"`
	Enabled bool   `json:"enabled"`
}

// HandleSetStatus enables or disables one token.
func (h *Handler) HandleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStatus(w, http.StatusBadRequest, "error", "invalid JSON body")
		return
	}
	_, id, err := h.Tokens.GetByAlias(tokenmanager.Alias(req.Alias))
	if err != nil {
		writeStatus(w, http.StatusNotFound, "error", "alias not found")
		return
	}
	writer, ok := h.Tokens.Writer(id)
	if !ok {
		writeStatus(w, http.StatusNotFound, "error", "alias not found")
		return
	}
	writer.Info().Enabled = req.Enabled
	writer.Commit()
	h.persistOrReport(w, "token status updated")
}

// --- SET ALIAS ------------------------------------------------------------

type setAliasRequest struct {
	Alias    string `json:"alias"`
	NewAlias string `json:"new_alias"`
}

// HandleSetAlias renames a token's alias; renaming to the alias it
// already has is an error, not a no-op (spec.md §9 Open Question 1).
func (h *Handler) HandleSetAlias(w http.ResponseWriter, r *http.Request) {
	var req setAliasRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStatus(w, http.StatusBadRequest, "error", "invalid JSON body")
		return
	}
	_, id, err := h.Tokens.GetByAlias(tokenmanager.Alias(req.Alias))
	if err != nil {
		writeStatus(w, http.StatusNotFound, "error", "alias not found")
		return
	}
	if err := h.Tokens.SetAlias(id, tokenmanager.Alias(req.NewAlias)); err != nil {
		writeStatus(w, http.StatusBadRequest, "error", err.Error())
		return
	}
	h.persistOrReport(w, "alias updated")
}

// --- SET PROXY ------------------------------------------------------------

type setProxyRequest struct {
	Alias string `json:"alias"`
	Proxy string `json:"proxy"`
}

// HandleSetProxy assigns the named proxy-pool entry to one token.
func (h *Handler) HandleSetProxy(w http.ResponseWriter, r *http.Request) {
	var req setProxyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStatus(w, http.StatusBadRequest, "error", "invalid JSON body")
		return
	}
	_, id, err := h.Tokens.GetByAlias(tokenmanager.Alias(req.Alias))
	if err != nil {
		writeStatus(w, http.StatusNotFound, "error", "alias not found")
		return
	}
	writer, ok := h.Tokens.Writer(id)
	if !ok {
		writeStatus(w, http.StatusNotFound, "error", "alias not found")
		return
	}
	writer.Info().Ext.Proxy = req.Proxy
	writer.Commit()
	h.persistOrReport(w, "proxy updated")
}

// --- SET TIMEZONE ---------------------------------------------------------

type setTimezoneRequest struct {
	Alias    string `json:"alias"`
	TimeZone string `json:"timezone"`
}

// HandleSetTimezone assigns an IANA time-zone name to one token.
func (h *Handler) HandleSetTimezone(w http.ResponseWriter, r *http.Request) {
	var req setTimezoneRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStatus(w, http.StatusBadRequest, "error", "invalid JSON body")
		return
	}
	_, id, err := h.Tokens.GetByAlias(tokenmanager.Alias(req.Alias))
	if err != nil {
		writeStatus(w, http.StatusNotFound, "error", "alias not found")
		return
	}
	writer, ok := h.Tokens.Writer(id)
	if !ok {
		writeStatus(w, http.StatusNotFound, "error", "alias not found")
		return
	}
	writer.Info().Ext.TimeZone = req.TimeZone
	writer.Commit()
	h.persistOrReport(w, "timezone updated")
}

// --- REFRESH ---------------------------------------------------------------

type refreshRequest struct {
	Alias string `json:"alias"`
}

// RefreshFunc performs the actual session upgrade for one token; wired to
// chatservice's PKCE upgrade in cmd/server so adminapi does not need to
// import chatservice directly.
type RefreshFunc func(ext *cursortoken.ExtToken) (*cursortoken.Token, error)

// HandleRefresh forces a session-token upgrade for one alias, independent
// of whether the upstream has actually rejected it yet.
func (h *Handler) HandleRefresh(refresh RefreshFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := decodeJSON(r, &req); err != nil {
			writeStatus(w, http.StatusBadRequest, "error", "invalid JSON body")
			return
		}
		info, id, err := h.Tokens.GetByAlias(tokenmanager.Alias(req.Alias))
		if err != nil {
			writeStatus(w, http.StatusNotFound, "error", "alias not found")
			return
		}
		newTok, err := refresh(&info.Ext)
		if err != nil {
			writeStatus(w, http.StatusBadGateway, "error", "refresh failed: "+err.Error())
			return
		}
		writer, ok := h.Tokens.Writer(id)
		if !ok {
			writeStatus(w, http.StatusNotFound, "error", "alias not found")
			return
		}
		prior := writer.Info().Ext.Primary
		writer.Info().Ext.Primary = newTok
		writer.Info().Ext.Secondary = nil
		writer.Commit()
		cursortoken.Release(prior)
		h.persistOrReport(w, "token refreshed")
	}
}

// --- MERGE ---------------------------------------------------------------

type mergeRequest struct {
	Into string `json:"into"`
	From string `json:"from"`
}

// HandleMerge copies From's proxy/timezone/region settings onto Into
// (only those Into leaves unset) and deletes From, used when two aliases turn out to reference the same
// upstream account.
func (h *Handler) HandleMerge(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStatus(w, http.StatusBadRequest, "error", "invalid JSON body")
		return
	}
	fromInfo, fromID, err := h.Tokens.GetByAlias(tokenmanager.Alias(req.From))
	if err != nil {
		writeStatus(w, http.StatusNotFound, "error", "'from' alias not found")
		return
	}
	_, intoID, err := h.Tokens.GetByAlias(tokenmanager.Alias(req.Into))
	if err != nil {
		writeStatus(w, http.StatusNotFound, "error", "'into' alias not found")
		return
	}

	intoWriter, ok := h.Tokens.Writer(intoID)
	if !ok {
		writeStatus(w, http.StatusNotFound, "error", "'into' alias not found")
		return
	}
	if intoWriter.Info().Ext.Proxy == "" {
		intoWriter.Info().Ext.Proxy = fromInfo.Ext.Proxy
	}
	if intoWriter.Info().Ext.TimeZone == "" {
		intoWriter.Info().Ext.TimeZone = fromInfo.Ext.TimeZone
	}
	if intoWriter.Info().Ext.Region == cursortoken.RegionUnspecified {
		intoWriter.Info().Ext.Region = fromInfo.Ext.Region
	}
	intoWriter.Commit()

	if removed, ok := h.Tokens.Remove(fromID); ok {
		cursortoken.Release(removed.Ext.Primary)
		if removed.Ext.Secondary != nil {
			cursortoken.Release(removed.Ext.Secondary)
		}
	}
	h.persistOrReport(w, "tokens merged")
}
