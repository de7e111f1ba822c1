// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianSensors/services/timeseries"
	"github.com/AleutianAI/AleutianSensors/services/timeseries/datatypes"
	"github.com/AleutianAI/AleutianSensors/services/timeseries/discovery"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockService struct {
	lastSel        datatypes.Selection
	lastSources    []string
	lastCategories []string
	err            error
}

func (m *mockService) Query(_ context.Context, sel datatypes.Selection) (timeseries.Result, error) {
	m.lastSel = sel
	if m.err != nil {
		return timeseries.Result{}, m.err
	}
	ev := datatypes.Event{
		Timestamp:    time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC),
		SourceID:     "esp32-01",
		Category:     "temperature",
		QuantityName: "temperature_c",
		Value:        22.5,
	}
	return timeseries.Result{Status: timeseries.StatusOK, Count: 1, Events: []datatypes.Event{ev}}, nil
}

func (m *mockService) Stats(ctx context.Context, sel datatypes.Selection) (timeseries.StatsResult, error) {
	if _, err := m.Query(ctx, sel); err != nil {
		return timeseries.StatsResult{}, err
	}
	return timeseries.StatsResult{Status: timeseries.StatusOK}, nil
}

func (m *mockService) Sources(_ context.Context, categories []string) []string {
	m.lastCategories = categories
	return []string{"esp32-01"}
}

func (m *mockService) Categories(_ context.Context, sources []string) []string {
	m.lastSources = sources
	return []string{"temperature"}
}

func (m *mockService) Choices(_ context.Context, sel datatypes.Selection) discovery.Choices {
	m.lastSel = sel
	return discovery.Choices{Sources: []string{"esp32-01"}, Categories: []string{"temperature"}}
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestRouter(svc QueryService, pinger Pinger) *gin.Engine {
	router := NewRouter("test", nil)
	SetupRoutes(router, svc, pinger, prometheus.NewRegistry())
	return router
}

func do(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSetupRoutes_Registered(t *testing.T) {
	router := newTestRouter(&mockService{}, nil)

	expected := map[string]bool{
		"GET /health":        false,
		"GET /metrics":       false,
		"POST /v1/query":     false,
		"POST /v1/stats":     false,
		"GET /v1/sources":    false,
		"GET /v1/categories": false,
		"POST /v1/choices":   false,
	}
	for _, r := range router.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := expected[key]; ok {
			expected[key] = true
		}
	}
	for route, found := range expected {
		assert.True(t, found, "route %s not registered", route)
	}
}

func TestHandleQuery_DefaultsOnEmptyBody(t *testing.T) {
	svc := &mockService{}
	router := newTestRouter(svc, nil)

	w := do(router, http.MethodPost, "/v1/query", "")
	require.Equal(t, http.StatusOK, w.Code)

	var res timeseries.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "ok", res.Status)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "esp32-01", res.Events[0].SourceID)
	assert.Equal(t, datatypes.DefaultFilterConfig(), svc.lastSel.Filters)
}

func TestHandleQuery_PartialFiltersKeepDefaults(t *testing.T) {
	svc := &mockService{}
	router := newTestRouter(svc, nil)

	body := `{"sources":["esp32-01"],"filters":{"low_pass":{"enabled":true}}}`
	w := do(router, http.MethodPost, "/v1/query", body)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, []string{"esp32-01"}, svc.lastSel.Sources)
	assert.True(t, svc.lastSel.Filters.LowPass.Enabled)
	assert.Equal(t, 1.0, svc.lastSel.Filters.LowPass.CutoffHz)
	assert.Equal(t, 4, svc.lastSel.Filters.LowPass.Order)
}

func TestHandleQuery_BadRequests(t *testing.T) {
	router := newTestRouter(&mockService{}, nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"sources":`},
		{"injection in source", `{"sources":["a\") or true"]}`},
		{"bad category", `{"categories":[" spaced out "]}`},
		{"inverted range", `{"start":"2025-05-02T00:00:00Z","end":"2025-05-01T00:00:00Z"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, http.MethodPost, "/v1/query", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestHandleQuery_ServiceErrors(t *testing.T) {
	invalid := &mockService{err: fmt.Errorf("%w: low_pass", timeseries.ErrInvalidSelection)}
	w := do(newTestRouter(invalid, nil), http.MethodPost, "/v1/query", "{}")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	broken := &mockService{err: errors.New("boom")}
	w = do(newTestRouter(broken, nil), http.MethodPost, "/v1/stats", "{}")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleSourcesAndCategories(t *testing.T) {
	svc := &mockService{}
	router := newTestRouter(svc, nil)

	w := do(router, http.MethodGet, "/v1/sources?category=temperature&category=strain,distance", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sources":["esp32-01"]}`, w.Body.String())
	assert.Equal(t, []string{"temperature", "strain", "distance"}, svc.lastCategories)

	w = do(router, http.MethodGet, "/v1/categories?source=esp32-01", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"categories":["temperature"]}`, w.Body.String())
	assert.Equal(t, []string{"esp32-01"}, svc.lastSources)

	w = do(router, http.MethodGet, "/v1/categories?source=%22bad", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleChoices(t *testing.T) {
	svc := &mockService{}
	router := newTestRouter(svc, nil)

	w := do(router, http.MethodPost, "/v1/choices", `{"mode":"category","categories":["temperature"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, datatypes.ModeByCategory, svc.lastSel.Mode)

	w = do(router, http.MethodPost, "/v1/choices", `{"mode":"everything"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleHealth(t *testing.T) {
	w := do(newTestRouter(&mockService{}, nil), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	down := pingFunc(func(context.Context) error { return errors.New("unreachable") })
	w = do(newTestRouter(&mockService{}, down), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")
}

func TestRequestID(t *testing.T) {
	router := newTestRouter(&mockService{}, nil)

	w := do(router, http.MethodGet, "/health", "")
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get(RequestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	w := do(newTestRouter(&mockService{}, nil), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
