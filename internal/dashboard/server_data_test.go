package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanwatch/internal/metrics"
	"loanwatch/logger"
	"loanwatch/models"
)

func doRequest(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return res
}

func decode(t *testing.T, res *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), out), res.Body.String())
}

func TestMetricsEndpointEmitsStoredMetrics(t *testing.T) {
	srv, _ := newTestServer(t)
	router, err := srv.buildRouter("loanwatch")
	require.NoError(t, err)

	metrics.EmitMetric(srv.log, "refresher", "position_total_borrowed", 100.0, "gauge", logger.Fields{"address": testWallet})
	metrics.EmitMetric(srv.log, "refresher", "position_total_borrowed", 5.0, "gauge", logger.Fields{"address": "other"})

	res := doRequest(t, router, http.MethodGet, "/api/metrics", "")
	require.Equal(t, http.StatusOK, res.Code)
	require.NotEmpty(t, srv.metricStore.snapshot())

	res = doRequest(t, router, http.MethodGet, "/api/metrics?address="+testWallet, "")
	var body struct {
		Metrics []map[string]interface{} `json:"metrics"`
	}
	decode(t, res, &body)
	require.Len(t, body.Metrics, 1)
	assert.Equal(t, 100.0, body.Metrics[0]["value"])
}

func TestPositionReadDoesNotStoreEvaluation(t *testing.T) {
	srv, _ := newTestServer(t)
	router, err := srv.buildRouter("loanwatch")
	require.NoError(t, err)

	res := doRequest(t, router, http.MethodGet, "/api/position", "")
	require.Equal(t, http.StatusOK, res.Code)
	_, stored := srv.refresher.Session().Evaluation()
	assert.False(t, stored)

	require.True(t, srv.refresher.RefreshPrice(context.Background()).OK())
	want, ok := srv.refresher.Session().Evaluation()
	require.True(t, ok)
	assert.Equal(t, want, srv.refresher.Current())
}

func TestRefreshStatusMapping(t *testing.T) {
	srv, src := newTestServer(t)
	router, err := srv.buildRouter("loanwatch")
	require.NoError(t, err)

	res := doRequest(t, router, http.MethodPost, "/api/position/refresh", `{"address":"   "}`)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	var view resultPayload
	decode(t, res, &view)
	assert.Equal(t, "Please enter an address.", view.Message)

	res = doRequest(t, router, http.MethodPost, "/api/position/refresh", `{"address":"unknown"}`)
	assert.Equal(t, http.StatusNotFound, res.Code)
	decode(t, res, &view)
	assert.Equal(t, "Address does not have a loan on AlphBanx.", view.Message)
	assert.Nil(t, view.Evaluation)

	src.fail = errors.New("connection refused")
	res = doRequest(t, router, http.MethodPost, "/api/position/refresh", `{"address":"`+testWallet+`"}`)
	assert.Equal(t, http.StatusBadGateway, res.Code)
	decode(t, res, &view)
	assert.Equal(t, "Could not fetch data. Please check the address or try again later.", view.Message)

	src.fail = nil
	res = doRequest(t, router, http.MethodPost, "/api/position/refresh", `{"address":"`+testWallet+`"}`)
	require.Equal(t, http.StatusOK, res.Code)
	view = resultPayload{}
	decode(t, res, &view)
	require.NotNil(t, view.Evaluation)
	assert.Equal(t, testPositionAt, view.Evaluation.Snapshot.PositionAddress)
	assert.Equal(t, 1000.0, view.Evaluation.Snapshot.CollateralAmount)
	assert.Equal(t, 7.0, view.Evaluation.Snapshot.InterestRateAPRPercent)

	res = doRequest(t, router, http.MethodPost, "/api/position/refresh", `not json`)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestBorrowIsClampedToSliderMax(t *testing.T) {
	srv, _ := newTestServer(t)
	router, err := srv.buildRouter("loanwatch")
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, doRequest(t, router, http.MethodPost, "/api/price/refresh", "").Code)
	require.Equal(t, http.StatusOK, doRequest(t, router, http.MethodPost, "/api/position/refresh", `{"address":"`+testWallet+`"}`).Code)

	res := doRequest(t, router, http.MethodPost, "/api/position/borrow", `{"amount":1000}`)
	require.Equal(t, http.StatusOK, res.Code)
	var view resultPayload
	decode(t, res, &view)
	require.NotNil(t, view.Evaluation)
	// 1000 ALPH at 0.5 USD backs 250 at 200%, 100 is already borrowed.
	assert.InDelta(t, 150, view.Evaluation.Snapshot.AdditionalBorrow, 1e-9)
	assert.InDelta(t, 150, view.Evaluation.SliderMax, 1e-9)
	// At exactly the minimum ratio the liquidation price equals the price.
	assert.Equal(t, models.TierBelowLiquidation, view.Evaluation.DisplayTier)

	res = doRequest(t, router, http.MethodPost, "/api/position/borrow", `{}`)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = doRequest(t, router, http.MethodGet, "/api/position", "")
	require.Equal(t, http.StatusOK, res.Code)
	var pos struct {
		Address    string         `json:"address"`
		Evaluation evaluationView `json:"evaluation"`
	}
	decode(t, res, &pos)
	assert.Equal(t, testWallet, pos.Address)
	assert.InDelta(t, 250, pos.Evaluation.Metrics.TotalBorrowed, 1e-9)
}

func TestPriceRefreshFailure(t *testing.T) {
	srv, src := newTestServer(t)
	router, err := srv.buildRouter("loanwatch")
	require.NoError(t, err)

	src.fail = errors.New("oracle down")
	res := doRequest(t, router, http.MethodPost, "/api/price/refresh", "")
	assert.Equal(t, http.StatusBadGateway, res.Code)
}

func TestCalcEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	router, err := srv.buildRouter("loanwatch")
	require.NoError(t, err)

	res := doRequest(t, router, http.MethodGet, "/api/calc?collateral=1000&price=0.5&borrowed=100&rate=10", "")
	require.Equal(t, http.StatusOK, res.Code)
	var view evaluationView
	decode(t, res, &view)
	require.NotNil(t, view.Metrics.CollateralizationRatioPercent)
	assert.InDelta(t, 500, *view.Metrics.CollateralizationRatioPercent, 1e-9)
	assert.Equal(t, models.TierSafe, view.DisplayTier)
	assert.InDelta(t, 10, view.Interest.Yearly, 1e-9)
	assert.InDelta(t, 20, view.Interest.YearlyCollateral, 1e-9)

	res = doRequest(t, router, http.MethodGet, "/api/calc?collateral=1000&price=0.5&borrowed=100&min_ratio=150", "")
	require.Equal(t, http.StatusOK, res.Code)
	decode(t, res, &view)
	assert.InDelta(t, 500.0/1.5-100, view.Metrics.MaxAdditionalBorrow, 1e-9)

	for _, q := range []string{"collateral=abc", "collateral=-1", "price=0", "rate=NaN"} {
		res = doRequest(t, router, http.MethodGet, "/api/calc?"+q, "")
		assert.Equal(t, http.StatusBadRequest, res.Code, q)
	}
}

func TestDeriveEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	router, err := srv.buildRouter("loanwatch")
	require.NoError(t, err)

	res := doRequest(t, router, http.MethodGet, "/api/derive/"+testPositionID, "")
	require.Equal(t, http.StatusOK, res.Code)
	var body map[string]string
	decode(t, res, &body)
	assert.Equal(t, testPositionAt, body["address"])

	res = doRequest(t, router, http.MethodGet, "/api/derive/xyz", "")
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestFavoritesEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	router, err := srv.buildRouter("loanwatch")
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, doRequest(t, router, http.MethodPost, "/api/favorites", `{"address":""}`).Code)

	res := doRequest(t, router, http.MethodPost, "/api/favorites", `{"address":"`+testWallet+`"}`)
	require.Equal(t, http.StatusCreated, res.Code)
	var body struct {
		Favorites []favoriteView `json:"favorites"`
	}
	decode(t, res, &body)
	require.Len(t, body.Favorites, 1)
	assert.Equal(t, "1DrDyTr9...rqfMrpQH", body.Favorites[0].Label)

	assert.Equal(t, http.StatusConflict, doRequest(t, router, http.MethodPost, "/api/favorites", `{"address":"`+testWallet+`"}`).Code)

	res = doRequest(t, router, http.MethodGet, "/api/favorites", "")
	decode(t, res, &body)
	assert.Len(t, body.Favorites, 1)

	assert.Equal(t, http.StatusOK, doRequest(t, router, http.MethodDelete, "/api/favorites/"+testWallet, "").Code)
	assert.Equal(t, http.StatusNotFound, doRequest(t, router, http.MethodDelete, "/api/favorites/"+testWallet, "").Code)
	assert.False(t, srv.favorites.Contains(testWallet))
}

func TestThemeEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	router, err := srv.buildRouter("loanwatch")
	require.NoError(t, err)

	var body map[string]string
	res := doRequest(t, router, http.MethodGet, "/api/theme", "")
	require.Equal(t, http.StatusOK, res.Code)

	res = doRequest(t, router, http.MethodPut, "/api/theme", `{"theme":"dark"}`)
	require.Equal(t, http.StatusOK, res.Code)
	decode(t, res, &body)
	assert.Equal(t, "dark", body["theme"])

	res = doRequest(t, router, http.MethodPut, "/api/theme", `{}`)
	require.Equal(t, http.StatusOK, res.Code)
	decode(t, res, &body)
	assert.Equal(t, "light", body["theme"])

	assert.Equal(t, http.StatusBadRequest, doRequest(t, router, http.MethodPut, "/api/theme", `{"theme":"sepia"}`).Code)
	assert.Equal(t, "light", srv.favorites.Theme())
}

func TestLogsEndpointFiltersByLevel(t *testing.T) {
	srv, _ := newTestServer(t)
	router, err := srv.buildRouter("loanwatch")
	require.NoError(t, err)

	srv.log.WithComponent("test").Info("informational")
	srv.log.WithComponent("test").Warn("careful")

	var body struct {
		Logs []logRecord `json:"logs"`
	}
	decode(t, doRequest(t, router, http.MethodGet, "/api/logs?level=warning", ""), &body)
	require.Len(t, body.Logs, 1)
	assert.Equal(t, "careful", body.Logs[0].Message)

	assert.Equal(t, http.StatusBadRequest, doRequest(t, router, http.MethodGet, "/api/logs?level=loud", "").Code)
}

func TestPrometheusAndIndexRoutes(t *testing.T) {
	srv, _ := newTestServer(t)
	router, err := srv.buildRouter("loanwatch")
	require.NoError(t, err)

	res := doRequest(t, router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "go_goroutines")

	res = doRequest(t, router, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "borrow-slider")

	res = doRequest(t, router, http.MethodGet, "/assets/app.js", "")
	assert.Equal(t, http.StatusOK, res.Code)
}
