package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/crmlens/internal/config"
	"github.com/KaramelBytes/crmlens/internal/metrics"
)

const sampleCSV = "Email,Phone,Company\n" +
	"a@x.com,1234567890,\n" +
	"a@x.com,555-000-1111,Acme\n" +
	"b@x.com,555 123 4567,Globex\n" +
	"c@x.com,123,<script>alert(1)</script>\n" +
	"d@x.com,555.987.6543,Acme\n"

func newTestServer(t *testing.T) (*Server, *metrics.Collector) {
	t.Helper()
	m := metrics.New()
	return New(config.Default(), nil, m), m
}

func multipartBody(t *testing.T, name, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAnalyzeMultipart(t *testing.T) {
	s, _ := newTestServer(t)
	body, ct := multipartBody(t, "crm.csv", sampleCSV)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", body)
	req.Header.Set("Content-Type", ct)
	rec := do(s, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var doc struct {
		Summary struct {
			Name      string `json:"name"`
			Records   int    `json:"records"`
			Anomalies int    `json:"anomalies"`
		} `json:"summary"`
		Records   []map[string]any `json:"records"`
		Anomalies []map[string]any `json:"anomalies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "crm.csv", doc.Summary.Name)
	assert.Equal(t, 4, doc.Summary.Records)
	assert.Equal(t, 1, doc.Summary.Anomalies)
	assert.Len(t, doc.Records, 4)
	require.Len(t, doc.Anomalies, 1)
	assert.Equal(t, "123", doc.Anomalies[0]["Phone"])
}

func TestAnalyzeRawBodyAnomaliesOnly(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze?anomalies_only=true", strings.NewReader(sampleCSV))
	req.Header.Set("Content-Type", "text/csv")
	rec := do(s, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	assert.Contains(t, rec.Body.String(), `"records": null`)
}

func TestAnalyzeErrorStatuses(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status int
		typ    string
	}{
		{"missing columns", "Email,Phone\na@x.com,1\n", http.StatusBadRequest, TypeInvalidInput},
		{"row wider than header", "Email,Phone,Company\na,1,x,extra\n", http.StatusBadRequest, TypeInvalidInput},
		{"too few phones", "Email,Phone,Company\na,1,x\nb,,y\n", http.StatusUnprocessableEntity, TypeUnprocessable},
		{"empty body", "", http.StatusBadRequest, TypeMissingUpload},
	}
	s, _ := newTestServer(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(tc.body))
			rec := do(s, req)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			var p Problem
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
			assert.Equal(t, tc.typ, p.Type)
			assert.Equal(t, tc.status, p.Status)
			assert.NotEmpty(t, p.RequestID)
		})
	}
}

func TestAnalyzeUploadTooLarge(t *testing.T) {
	cfg := config.Default()
	cfg.Server.MaxUploadBytes = 16
	s := New(cfg, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(sampleCSV))
	rec := do(s, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestDashboardRendersTables(t *testing.T) {
	s, _ := newTestServer(t)
	body, ct := multipartBody(t, "crm.csv", sampleCSV)
	req := httptest.NewRequest(http.MethodPost, "/dashboard", body)
	req.Header.Set("Content-Type", ct)
	rec := do(s, req)
	require.Equal(t, http.StatusOK, rec.Code)

	html := rec.Body.String()
	assert.Contains(t, html, "Cleaned CRM Data")
	assert.Contains(t, html, "Anomalies Detected")
	assert.Contains(t, html, "Predicted Sales Outcomes")
	assert.Contains(t, html, `class="anomaly"`)
	assert.Contains(t, html, "&lt;script&gt;")
	assert.NotContains(t, html, "<script>alert")
}

func TestDashboardErrorPage(t *testing.T) {
	s, _ := newTestServer(t)
	body, ct := multipartBody(t, "crm.csv", "Email\na\n")
	req := httptest.NewRequest(http.MethodPost, "/dashboard", body)
	req.Header.Set("Content-Type", ct)
	rec := do(s, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing required columns")
}

func TestIndexHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="file"`)

	rec = do(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(sampleCSV))
	require.Equal(t, http.StatusOK, do(s, req).Code)

	rec = do(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, `crmlens_pipeline_runs_total{outcome="ok"} 1`)
	assert.Contains(t, out, `crmlens_http_requests_total{code="200",route="/api/v1/analyze"} 1`)
}

func TestClassify(t *testing.T) {
	status, typ := classify(io.ErrUnexpectedEOF)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, TypeInternal, typ)
}
