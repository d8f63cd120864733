package server

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edurisk/internal/explain"
	"edurisk/internal/features"
	"edurisk/internal/ml"
	"edurisk/internal/risk"
	"edurisk/internal/scoring"
	"edurisk/internal/storage"
)

func testVector() features.Vector {
	return features.Vector{
		features.PreviousQualification: 1,
		features.AgeAtEnrollment:       21,
		features.ScholarshipHolder:     1,
		features.Debtor:                0,
		features.TuitionFeesUpToDate:   1,
		features.FirstSemGrade:         13.5,
		features.SecondSemGrade:        12.0,
		features.GDP:                   1.2,
	}
}

func testServer(t *testing.T, withModel bool) (*Server, *storage.Store, *Hub, string) {
	t.Helper()
	modelDir := t.TempDir()

	var predictor *ml.Predictor
	var engine *explain.Engine
	if withModel {
		rng := rand.New(rand.NewSource(3))
		x := make([][]float64, 150)
		y := make([]int, 150)
		for i := range x {
			row := make([]float64, features.Count)
			for j := range row {
				row[j] = rng.Float64() * 20
			}
			x[i] = row
			if row[5] < 10 {
				y[i] = 1
			}
		}
		p := ml.DefaultRandomForestParams()
		p.Trees = 5
		rf, err := ml.TrainRandomForest(x, y, p)
		require.NoError(t, err)

		predictor = ml.NewPredictorFromClassifier(ml.NameRandomForest, rf, risk.Default)
		engine = explain.NewEngine(rf, explain.Config{})
	} else {
		predictor = ml.NewPredictor(modelDir, risk.Default)
	}

	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	hub := NewHub(nil)
	go hub.Run()
	t.Cleanup(hub.Stop)

	svc := scoring.New(predictor, engine, store, hub, nil)
	return New(":0", svc, store, hub, modelDir, 50), store, hub, modelDir
}

func postPredict(t *testing.T, handler http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/predict", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestPredictEndpoint(t *testing.T) {
	srv, _, _, _ := testServer(t, true)

	w := postPredict(t, srv.Handler(), predictRequest{StudentID: "s-100", Features: testVector()})
	require.Equal(t, http.StatusOK, w.Code)

	var result scoring.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "s-100", result.StudentID)
	assert.GreaterOrEqual(t, result.RiskScore, 0.0)
	assert.LessOrEqual(t, result.RiskScore, 100.0)
	assert.Contains(t, []risk.Category{risk.Low, risk.Medium, risk.High}, result.RiskCategory)
	assert.NotEmpty(t, result.TopFeatures)
}

func TestPredictMissingFeature(t *testing.T) {
	srv, _, _, _ := testServer(t, true)

	v := testVector()
	delete(v, features.GDP)

	w := postPredict(t, srv.Handler(), predictRequest{StudentID: "s-101", Features: v})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "gdp")
}

func TestPredictNoModel(t *testing.T) {
	srv, _, _, _ := testServer(t, false)

	w := postPredict(t, srv.Handler(), predictRequest{StudentID: "s-102", Features: testVector()})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPredictBadRequest(t *testing.T) {
	srv, _, _, _ := testServer(t, true)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/predict", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w2 := postPredict(t, srv.Handler(), predictRequest{Features: testVector()})
	assert.Equal(t, http.StatusBadRequest, w2.Code)
}

func TestHealthEndpoint(t *testing.T) {
	loaded, _, _, _ := testServer(t, true)
	w := httptest.NewRecorder()
	loaded.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "loaded")

	degraded, _, _, _ := testServer(t, false)
	w2 := httptest.NewRecorder()
	degraded.Handler().ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w2.Code)
	assert.Contains(t, w2.Body.String(), "degraded")
}

func TestModelsEndpoint(t *testing.T) {
	srv, _, _, modelDir := testServer(t, true)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	report := ml.ComparisonReport{
		ml.NameRandomForest: {Name: ml.NameRandomForest, Trained: true},
	}
	data, err := json.Marshal(report)
	require.NoError(t, err)
	require.NoError(t, writeFile(ml.ReportPath(modelDir), data))

	w2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))
	require.Equal(t, http.StatusOK, w2.Code)

	var got ml.ComparisonReport
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &got))
	assert.True(t, got[ml.NameRandomForest].Trained)
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}

func TestHistoryEndpoints(t *testing.T) {
	srv, _, _, _ := testServer(t, true)

	for i := 0; i < 3; i++ {
		w := postPredict(t, srv.Handler(), predictRequest{StudentID: "s-200", Features: testVector()})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/students/s-200/predictions", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var history []storage.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Len(t, history, 3)

	w2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/api/v1/predictions/recent?limit=2", nil))
	require.Equal(t, http.StatusOK, w2.Code)

	var recent []storage.Record
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &recent))
	assert.Len(t, recent, 2)
}

func TestWebSocketFeedDeliversPredictions(t *testing.T) {
	srv, _, _, _ := testServer(t, true)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/predictions"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the hub a moment to register the subscriber.
	time.Sleep(50 * time.Millisecond)

	w := postPredict(t, srv.Handler(), predictRequest{StudentID: "s-300", Features: testVector()})
	require.Equal(t, http.StatusOK, w.Code)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var record storage.Record
	require.NoError(t, conn.ReadJSON(&record))
	assert.Equal(t, "s-300", record.StudentID)
	assert.NotEmpty(t, record.ID)
}
