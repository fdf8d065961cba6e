package adminapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixaill76/cursor-gateway/internal/cursortoken"
	"github.com/mixaill76/cursor-gateway/internal/proxypool"
	"github.com/mixaill76/cursor-gateway/internal/tokenhealth"
	"github.com/mixaill76/cursor-gateway/internal/tokenmanager"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testToken(t *testing.T) string {
	t.Helper()
	key := cursortoken.NewRandomKey()
	return cursortoken.Printable(key, 9999999999, cursortoken.KindWeb, "sig")
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	return &Handler{
		Tokens:  tokenmanager.New(),
		Proxies: proxypool.New(proxypool.Config{}, proxypool.DefaultTuning()),
		Logger:  discardLogger(),
	}
}

func doJSON(h http.HandlerFunc, body any) *httptest.ResponseRecorder {
	buf := &bytes.Buffer{}
	_ = json.NewEncoder(buf).Encode(body)
	req := httptest.NewRequest(http.MethodPost, "/admin/tokens", buf)
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestHandleAddThenHandleGet(t *testing.T) {
	h := newTestHandler(t)

	addRec := doJSON(h.HandleAdd, addRequest{Alias: "alice", Token: testToken(t)})
	assert.Equal(t, http.StatusOK, addRec.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/admin/tokens", nil)
	getRec := httptest.NewRecorder()
	h.HandleGet(getRec, getReq)

	var views []tokenView
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "alice", views[0].Alias)
	assert.True(t, views[0].Enabled)
}

func TestHandleGetReportsLiveUnhealthyFromTracker(t *testing.T) {
	h := newTestHandler(t)
	h.Health = tokenhealth.New(1, time.Minute)

	addRec := doJSON(h.HandleAdd, addRequest{Alias: "alice", Token: testToken(t)})
	assert.Equal(t, http.StatusOK, addRec.Code)

	info, _, err := h.Tokens.GetByAlias("alice")
	require.NoError(t, err)
	tripped := h.Health.RecordFailure(info.Ext.Primary.Key())
	require.True(t, tripped)

	getReq := httptest.NewRequest(http.MethodGet, "/admin/tokens", nil)
	getRec := httptest.NewRecorder()
	h.HandleGet(getRec, getReq)

	var views []tokenView
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.True(t, views[0].Unhealthy)
}

func TestHandleAddRejectsMalformedToken(t *testing.T) {
	h := newTestHandler(t)
	rec := doJSON(h.HandleAdd, addRequest{Alias: "bob", Token: "not-a-token"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAddRejectsInvalidJSON(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/admin/tokens", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	h.HandleAdd(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDeleteRemovesToken(t *testing.T) {
	h := newTestHandler(t)
	doJSON(h.HandleAdd, addRequest{Alias: "carl", Token: testToken(t)})

	rec := doJSON(h.HandleDelete, deleteRequest{Alias: "carl"})
	assert.Equal(t, http.StatusOK, rec.Code)

	_, _, err := h.Tokens.GetByAlias(tokenmanager.Alias("carl"))
	assert.Error(t, err)
}

func TestHandleDeleteUnknownAlias(t *testing.T) {
	h := newTestHandler(t)
	rec := doJSON(h.HandleDelete, deleteRequest{Alias: "nobody"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSetStatusTogglesEnabled(t *testing.T) {
	h := newTestHandler(t)
	doJSON(h.HandleAdd, addRequest{Alias: "dave", Token: testToken(t)})

	rec := doJSON(h.HandleSetStatus, setStatusRequest{Alias: "dave", Enabled: false})
	assert.Equal(t, http.StatusOK, rec.Code)

	info, _, err := h.Tokens.GetByAlias(tokenmanager.Alias("dave"))
	require.NoError(t, err)
	assert.False(t, info.Enabled)
}

func TestHandleSetAliasRenames(t *testing.T) {
	h := newTestHandler(t)
	doJSON(h.HandleAdd, addRequest{Alias: "eve", Token: testToken(t)})

	rec := doJSON(h.HandleSetAlias, setAliasRequest{Alias: "eve", NewAlias: "evelyn"})
	assert.Equal(t, http.StatusOK, rec.Code)

	_, _, err := h.Tokens.GetByAlias(tokenmanager.Alias("eve"))
	assert.Error(t, err)
	_, _, err = h.Tokens.GetByAlias(tokenmanager.Alias("evelyn"))
	assert.NoError(t, err)
}

func TestHandleSetProxyAndTimezone(t *testing.T) {
	h := newTestHandler(t)
	doJSON(h.HandleAdd, addRequest{Alias: "frank", Token: testToken(t)})

	rec := doJSON(h.HandleSetProxy, setProxyRequest{Alias: "frank", Proxy: "eu-proxy"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(h.HandleSetTimezone, setTimezoneRequest{Alias: "frank", TimeZone: "Europe/Berlin"})
	assert.Equal(t, http.StatusOK, rec.Code)

	info, _, err := h.Tokens.GetByAlias(tokenmanager.Alias("frank"))
	require.NoError(t, err)
	assert.Equal(t, "eu-proxy", info.Ext.Proxy)
	assert.Equal(t, "Europe/Berlin", info.Ext.TimeZone)
}

func TestHandleRefreshReplacesPrimaryToken(t *testing.T) {
	h := newTestHandler(t)
	doJSON(h.HandleAdd, addRequest{Alias: "gina", Token: testToken(t)})

	newKey := cursortoken.NewRandomKey()
	newTok := cursortoken.New(newKey, 9999999999, cursortoken.KindWeb, "refreshed")

	refresh := RefreshFunc(func(ext *cursortoken.ExtToken) (*cursortoken.Token, error) {
		return newTok, nil
	})

	rec := doJSON(h.HandleRefresh(refresh), refreshRequest{Alias: "gina"})
	assert.Equal(t, http.StatusOK, rec.Code)

	info, _, err := h.Tokens.GetByAlias(tokenmanager.Alias("gina"))
	require.NoError(t, err)
	assert.Equal(t, newKey, info.Ext.Primary.Key())
	assert.Nil(t, info.Ext.Secondary)
}

func TestHandleRefreshPropagatesFailure(t *testing.T) {
	h := newTestHandler(t)
	doJSON(h.HandleAdd, addRequest{Alias: "hank", Token: testToken(t)})

	refresh := RefreshFunc(func(ext *cursortoken.ExtToken) (*cursortoken.Token, error) {
		return nil, assert.AnError
	})

	rec := doJSON(h.HandleRefresh(refresh), refreshRequest{Alias: "hank"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleMergeCopiesSettingsAndRemovesFrom(t *testing.T) {
	h := newTestHandler(t)
	doJSON(h.HandleAdd, addRequest{Alias: "into", Token: testToken(t)})
	doJSON(h.HandleAdd, addRequest{Alias: "from", Token: testToken(t), Proxy: "eu-proxy", TimeZone: "Europe/Paris"})

	rec := doJSON(h.HandleMerge, mergeRequest{Into: "into", From: "from"})
	assert.Equal(t, http.StatusOK, rec.Code)

	info, _, err := h.Tokens.GetByAlias(tokenmanager.Alias("into"))
	require.NoError(t, err)
	assert.Equal(t, "eu-proxy", info.Ext.Proxy)
	assert.Equal(t, "Europe/Paris", info.Ext.TimeZone)

	_, _, err = h.Tokens.GetByAlias(tokenmanager.Alias("from"))
	assert.Error(t, err)
}

func TestPersistOrReportWithNoTokensPathSkipsPersistence(t *testing.T) {
	h := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.persistOrReport(rec, "done")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "done", resp.Message)
}
