package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajharbinger/perfeval/internal/repository"
	"github.com/ajharbinger/perfeval/internal/seed"
	"github.com/ajharbinger/perfeval/internal/services"
)

func newTestRouter(t *testing.T, opts RouteOptions) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repos := repository.NewMemoryRepositories()
	data, err := seed.Default()
	require.NoError(t, err)
	_, err = seed.Apply(context.Background(), repos, data)
	require.NoError(t, err)

	svc := services.NewServices(repos, services.Options{ChannelSuccessRate: 1})
	r := gin.New()
	SetupRoutes(r, svc, opts)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func TestHealthEndpoint(t *testing.T) {
	t.Run("all components healthy", func(t *testing.T) {
		r := newTestRouter(t, RouteOptions{HealthChecks: map[string]HealthCheck{
			"database": func(context.Context) error { return nil },
		}})
		w, body := doJSON(t, r, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "healthy", body["status"])
		assert.Contains(t, body, "timestamp")
	})

	t.Run("failing component degrades", func(t *testing.T) {
		r := newTestRouter(t, RouteOptions{HealthChecks: map[string]HealthCheck{
			"redis": func(context.Context) error { return fmt.Errorf("connection refused") },
		}})
		w, body := doJSON(t, r, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "degraded", body["status"])
		components := body["components"].(map[string]interface{})
		assert.Equal(t, "connection refused", components["redis"])
	})
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, RouteOptions{Metrics: true})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	r = newTestRouter(t, RouteOptions{})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIndicatorRoutes(t *testing.T) {
	r := newTestRouter(t, RouteOptions{})

	w, body := doJSON(t, r, http.MethodGet, "/api/v1/indicators", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 13, body["total"])

	w, body = doJSON(t, r, http.MethodGet, "/api/v1/indicators?category=c3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["total"])

	w, body = doJSON(t, r, http.MethodGet, "/api/v1/indicators/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", body["code"])

	w, _ = doJSON(t, r, http.MethodGet, "/api/v1/indicators/1/preview", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, body = doJSON(t, r, http.MethodDelete, "/api/v1/categories/c3", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", body["code"])

	w, _ = doJSON(t, r, http.MethodPost, "/api/v1/categories", CategoryRequest{ParentID: "c3", Name: "存储"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestModelRoutes(t *testing.T) {
	r := newTestRouter(t, RouteOptions{})

	w, body := doJSON(t, r, http.MethodGet, "/api/v1/models", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 4, body["total"])

	w, body = doJSON(t, r, http.MethodPost, "/api/v1/models/m3/evaluate", map[string]interface{}{
		"observations": map[string]interface{}{"3": 12.5, "4": 3.8, "5": 98.2, "8": 99.9},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := body["result"].(map[string]interface{})
	assert.InDelta(t, 89.0, result["total"].(float64), 1e-9)
	assert.Equal(t, "良好", result["grade"].(map[string]interface{})["name"])

	w, body = doJSON(t, r, http.MethodGet, "/api/v1/models/m3/rules", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["indicators"])

	w, _ = doJSON(t, r, http.MethodPost, "/api/v1/models/m3/copy", nil)
	assert.Equal(t, http.StatusCreated, w.Code)

	w, body = doJSON(t, r, http.MethodPost, "/api/v1/models/m3/evaluate", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", body["code"])

	w, _ = doJSON(t, r, http.MethodDelete, "/api/v1/models/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDraftRoutes_Wizard(t *testing.T) {
	r := newTestRouter(t, RouteOptions{})

	w, body := doJSON(t, r, http.MethodPost, "/api/v1/drafts", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	draft := body["draft"].(map[string]interface{})
	assert.Equal(t, "BasicInfo", draft["state"])
	assert.Equal(t, true, draft["isNew"])
	base := "/api/v1/drafts/" + draft["id"].(string)

	w, body = doJSON(t, r, http.MethodPost, base+"/indicators", AddIndicatorRequest{IndicatorID: "13"})
	assert.Equal(t, http.StatusConflict, w.Code, "indicators are configured in the second step")

	w, _ = doJSON(t, r, http.MethodPut, base+"/basic-info", map[string]interface{}{
		"name": "预算执行评价", "scoringMethod": "WEIGHTED",
	})
	require.Equal(t, http.StatusOK, w.Code)
	w, body = doJSON(t, r, http.MethodPost, base+"/next", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "IndicatorConfig", body["draft"].(map[string]interface{})["state"])

	w, _ = doJSON(t, r, http.MethodPost, base+"/indicators", AddIndicatorRequest{IndicatorID: "13"})
	require.Equal(t, http.StatusOK, w.Code)

	w, body = doJSON(t, r, http.MethodPatch, base+"/indicators/13", map[string]interface{}{
		"ruleType":   "RATIO",
		"ruleConfig": map[string]interface{}{"ratioType": "nope"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])

	w, body = doJSON(t, r, http.MethodPatch, base+"/indicators/13", map[string]interface{}{
		"weight":          50,
		"ruleType":        "BONUS",
		"ruleConfig":      map[string]interface{}{"bonusTrigger": 1, "bonusPerUnit": 2, "bonusCap": 10},
		"requireEvidence": true,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", body["code"])
	w, body = doJSON(t, r, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	ind := body["draft"].(map[string]interface{})["model"].(map[string]interface{})["indicators"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "THRESHOLD", ind["ruleType"], "a rejected patch leaves the indicator unchanged")
	assert.EqualValues(t, 0, ind["weight"])
	assert.Equal(t, false, ind["requireEvidence"])

	w, body = doJSON(t, r, http.MethodPatch, base+"/indicators/13", map[string]interface{}{
		"weight":         100,
		"ruleType":       "RATIO",
		"ruleConfig":     map[string]interface{}{"ratioType": "PROPORTIONAL", "ratioBase": 100, "ratioCoefficient": 2, "ratioMax": 100},
		"enableEvidence": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	draft = body["draft"].(map[string]interface{})
	assert.EqualValues(t, 100, draft["totalWeight"])
	ind = draft["model"].(map[string]interface{})["indicators"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "RATIO", ind["ruleType"])
	assert.Equal(t, true, ind["enableEvidence"])

	w, _ = doJSON(t, r, http.MethodPatch, base+"/indicators/7", map[string]interface{}{"weight": 10})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = doJSON(t, r, http.MethodPost, base+"/next", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = doJSON(t, r, http.MethodPut, base+"/grades", map[string]interface{}{"enabled": true})
	require.Equal(t, http.StatusOK, w.Code)

	w, body = doJSON(t, r, http.MethodPost, base+"/save", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	saved := body["model"].(map[string]interface{})
	assert.Equal(t, "预算执行评价", saved["name"])

	w, _ = doJSON(t, r, http.MethodGet, "/api/v1/models/"+saved["id"].(string), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = doJSON(t, r, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDraftRoutes_EditAndCancel(t *testing.T) {
	r := newTestRouter(t, RouteOptions{})

	w, body := doJSON(t, r, http.MethodPost, "/api/v1/drafts?modelId=m4", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	draft := body["draft"].(map[string]interface{})
	assert.Equal(t, false, draft["isNew"])
	base := "/api/v1/drafts/" + draft["id"].(string)

	w, _ = doJSON(t, r, http.MethodPost, base+"/back", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = doJSON(t, r, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, _ = doJSON(t, r, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = doJSON(t, r, http.MethodGet, "/api/v1/drafts/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", body["code"])

	w, _ = doJSON(t, r, http.MethodPost, "/api/v1/drafts?modelId=missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRuleRoutes(t *testing.T) {
	r := newTestRouter(t, RouteOptions{})

	w, body := doJSON(t, r, http.MethodGet, "/api/v1/rules/types", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["types"], 5)

	threshold := map[string]interface{}{
		"thresholds": []map[string]interface{}{{"operator": ">=", "value1": 95, "score": 100}},
	}

	w, body = doJSON(t, r, http.MethodPost, "/api/v1/rules/describe", map[string]interface{}{
		"ruleType": "THRESHOLD", "ruleConfig": threshold,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[1] 指标值 >= 95 得 100分", body["description"])

	w, body = doJSON(t, r, http.MethodPost, "/api/v1/rules/evaluate", map[string]interface{}{
		"ruleType": "THRESHOLD", "ruleConfig": threshold, "value": 97,
	})
	require.Equal(t, http.StatusOK, w.Code)
	result := body["result"].(map[string]interface{})
	assert.Equal(t, true, result["scored"])
	assert.EqualValues(t, 100, result["score"])

	w, body = doJSON(t, r, http.MethodPost, "/api/v1/rules/evaluate", map[string]interface{}{
		"ruleType": "THRESHOLD", "ruleConfig": threshold, "value": 10,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["result"].(map[string]interface{})["scored"])

	w, body = doJSON(t, r, http.MethodPost, "/api/v1/rules/evaluate", map[string]interface{}{
		"ruleType": "THRESHOLD", "ruleConfig": threshold,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", body["code"])

	w, body = doJSON(t, r, http.MethodPost, "/api/v1/rules/validate", map[string]interface{}{
		"ruleType":   "THRESHOLD",
		"ruleConfig": map[string]interface{}{"thresholds": []map[string]interface{}{{"operator": "range", "value1": 5, "score": 10}}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, "a range band needs an upper bound")
	assert.Equal(t, "VALIDATION_ERROR", body["code"])

	w, body = doJSON(t, r, http.MethodPost, "/api/v1/rules/describe", map[string]interface{}{"ruleType": "LINEAR"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
}

func TestChannelRoutes(t *testing.T) {
	r := newTestRouter(t, RouteOptions{})

	w, body := doJSON(t, r, http.MethodGet, "/api/v1/connections", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, body["total"])

	w, body = doJSON(t, r, http.MethodPost, "/api/v1/connections/conn3/test", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["result"].(map[string]interface{})["success"])

	w, body = doJSON(t, r, http.MethodGet, "/api/v1/connections/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["health"], 1)

	w, body = doJSON(t, r, http.MethodPost, "/api/v1/connections", map[string]interface{}{
		"name": "归档库", "type": "FTP", "host": "10.0.0.9",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])

	w, body = doJSON(t, r, http.MethodGet, "/api/v1/records?batch=2024-W21&search=财政", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotZero(t, body["total"])
}

func TestChannelRoutes_ImportRecords(t *testing.T) {
	r := newTestRouter(t, RouteOptions{})
	csv := "objectName,indicatorName,value,unit,collectionTime,batchId\n" +
		"市交通局,云存储使用量,0.8,TB,2024-05-27 10:05:00,2024-W22\n"

	t.Run("raw csv body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/connections/conn1/records", strings.NewReader(csv))
		req.Header.Set("Content-Type", "text/csv")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	})

	t.Run("multipart upload", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("csv_file", "week22.csv")
		require.NoError(t, err)
		_, err = part.Write([]byte(csv))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/connections/conn1/records", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "week22.csv", body["filename"])
	})

	t.Run("non csv file", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("csv_file", "week22.xlsx")
		require.NoError(t, err)
		_, _ = part.Write([]byte(csv))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/connections/conn1/records", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	w, body := doJSON(t, r, http.MethodGet, "/api/v1/records?batch=2024-W22", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["total"])
}

func TestRunRoutes(t *testing.T) {
	r := newTestRouter(t, RouteOptions{})

	w, body := doJSON(t, r, http.MethodPost, "/api/v1/runs", RunRequest{ModelID: "m4", BatchID: "2024-W21"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	run := body["run"].(map[string]interface{})
	assert.Equal(t, "completed", run["status"])
	assert.Len(t, body["scores"], 3)

	w, body = doJSON(t, r, http.MethodGet, "/api/v1/runs/"+run["id"].(string), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["scores"], 3)

	w, body = doJSON(t, r, http.MethodGet, "/api/v1/runs?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["total"])

	w, _ = doJSON(t, r, http.MethodGet, "/api/v1/runs?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = doJSON(t, r, http.MethodGet, "/api/v1/runs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = doJSON(t, r, http.MethodPost, "/api/v1/runs", RunRequest{ModelID: "m4", BatchID: "1999-W01"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", body["code"])

	w, _ = doJSON(t, r, http.MethodPost, "/api/v1/runs", map[string]string{"modelId": "m4"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
