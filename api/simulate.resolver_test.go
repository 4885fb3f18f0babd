package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeTestPanel(t *testing.T) string {
	t.Helper()
	csv := `symbol,date,open,close,avg,high_limit,low_limit,adj_factor,halted
AAPL,2024-01-02,100,100,100,150,50,1,false
AAPL,2024-01-03,110,110,110,165,55,1,false
AAPL,2024-01-04,121,121,121,180,60,1,false
MSFT,2024-01-02,50,50,50,75,25,1,false
MSFT,2024-01-03,55,55,55,82,27,1,false
MSFT,2024-01-04,60.5,60.5,60.5,90,30,1,false
`
	path := filepath.Join(t.TempDir(), "panel.csv")
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))
	return path
}

func newTestRouter() (*gin.Engine, ApiHandler) {
	gin.SetMode(gin.TestMode)
	handler := ApiHandler{Log: zap.S()}
	router := gin.New()
	router.POST("/simulate", handler.simulate)
	return router, handler
}

func TestSimulateResolver_inlineTargets(t *testing.T) {
	router, _ := newTestRouter()

	body, err := json.Marshal(simulateRequest{
		PanelPath: writeTestPanel(t),
		Start:     "2024-01-03",
		End:       "2024-01-04",
		Targets: map[string]map[string]float64{
			"2024-01-03": {"AAPL": 0.5, "MSFT": 0.5},
			"2024-01-04": {"AAPL": 0.5, "MSFT": 0.5},
		},
		InitialCash:   10_000,
		TradeCostRate: floatPtr(0),
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/simulate", bytes.NewReader(body))
	router.ServeHTTP(w, req)
	require.Equal(t, 200, w.Code, w.Body.String())

	var response simulateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.NotEmpty(t, response.RunID)
	require.Len(t, response.TotalAssets, 2)
	require.InDelta(t, 10_000, response.TotalAssets[0].Value, 1e-9)
	require.Empty(t, response.SkippedDays)
}

func TestSimulateResolver_badRequest(t *testing.T) {
	router, _ := newTestRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/simulate", bytes.NewReader([]byte(`{}`)))
	router.ServeHTTP(w, req)
	require.Equal(t, 400, w.Code)
}

func TestSimulateResolver_needsTargetsOrExpression(t *testing.T) {
	router, _ := newTestRouter()

	body, err := json.Marshal(simulateRequest{
		PanelPath:   writeTestPanel(t),
		Start:       "2024-01-03",
		End:         "2024-01-04",
		InitialCash: 10_000,
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/simulate", bytes.NewReader(body))
	router.ServeHTTP(w, req)
	require.Equal(t, 500, w.Code)
}

func floatPtr(f float64) *float64 {
	return &f
}
