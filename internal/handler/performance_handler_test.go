package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scorecard-api/internal/dto"
	"github.com/noah-isme/scorecard-api/internal/models"
	appErrors "github.com/noah-isme/scorecard-api/pkg/errors"
)

type fakePerformanceSrv struct {
	dashboard    *dto.PerformanceDashboard
	ranking      models.Ranking
	export       []byte
	trend        *dto.StudentTrendView
	swot         *dto.SwotView
	hit          bool
	err          error
	lastQuery    dto.PerformanceQuery
	refreshed    string
	systemCalled bool
}

func (f *fakePerformanceSrv) Dashboard(_ context.Context, q dto.PerformanceQuery) (*dto.PerformanceDashboard, bool, error) {
	f.lastQuery = q
	return f.dashboard, f.hit, f.err
}

func (f *fakePerformanceSrv) Rankings(_ context.Context, q dto.PerformanceQuery) (models.Ranking, bool, error) {
	f.lastQuery = q
	return f.ranking, f.hit, f.err
}

func (f *fakePerformanceSrv) ExportRankings(_ context.Context, q dto.PerformanceQuery) ([]byte, error) {
	f.lastQuery = q
	return f.export, f.err
}

func (f *fakePerformanceSrv) StudentTrend(_ context.Context, q dto.PerformanceQuery) (*dto.StudentTrendView, bool, error) {
	f.lastQuery = q
	return f.trend, f.hit, f.err
}

func (f *fakePerformanceSrv) Swot(_ context.Context, q dto.PerformanceQuery) (*dto.SwotView, bool, error) {
	f.lastQuery = q
	return f.swot, f.hit, f.err
}

func (f *fakePerformanceSrv) Refresh(_ context.Context, classroomID string) error {
	f.refreshed = classroomID
	return f.err
}

func (f *fakePerformanceSrv) SystemMetrics() models.SystemMetrics {
	f.systemCalled = true
	return models.SystemMetrics{PipelineRuns: 3}
}

type responseEnvelope struct {
	Data  map[string]interface{} `json:"data"`
	Error map[string]interface{} `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func performRequest(t *testing.T, method, target string, params gin.Params, fn gin.HandlerFunc) (*httptest.ResponseRecorder, responseEnvelope) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, nil)
	c.Params = params

	fn(c)

	var envelope responseEnvelope
	if rec.Header().Get("Content-Type") != "text/csv" {
		_ = json.Unmarshal(rec.Body.Bytes(), &envelope)
	}
	return rec, envelope
}

func TestPerformanceHandlerDashboardRequiresClassroom(t *testing.T) {
	srv := &fakePerformanceSrv{}
	handler := NewPerformanceHandler(srv)

	rec, envelope := performRequest(t, http.MethodGet, "/performance/dashboard", nil, handler.Dashboard)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, envelope.Error["code"])
}

func TestPerformanceHandlerDashboardParsesQuery(t *testing.T) {
	srv := &fakePerformanceSrv{
		dashboard: &dto.PerformanceDashboard{ClassroomID: "class-1"},
		hit:       true,
	}
	handler := NewPerformanceHandler(srv)

	rec, envelope := performRequest(t, http.MethodGet,
		"/performance/dashboard?classroom_id=class-1&test=0&subject=Chem&search=ravi&metric=TOTAL&zero_absent=false&viewer_id=v-1",
		nil, handler.Dashboard)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "class-1", envelope.Data["classroomId"])
	assert.Equal(t, true, envelope.Meta["cache_hit"])
	assert.Contains(t, envelope.Meta, "processing_time_ms")

	q := srv.lastQuery
	require.NotNil(t, q.TestNumber)
	assert.Equal(t, 0, *q.TestNumber)
	assert.Equal(t, "Chem", q.Subject)
	assert.Equal(t, "ravi", q.Search)
	assert.Equal(t, models.RankByTotal, q.Metric)
	require.NotNil(t, q.ZeroAsAbsent)
	assert.False(t, *q.ZeroAsAbsent)
	assert.Equal(t, "v-1", q.ViewerID)
}

func TestPerformanceHandlerDashboardDefaultsToLatestTest(t *testing.T) {
	srv := &fakePerformanceSrv{dashboard: &dto.PerformanceDashboard{}}
	handler := NewPerformanceHandler(srv)

	rec, _ := performRequest(t, http.MethodGet, "/performance/dashboard?classroom_id=class-1", nil, handler.Dashboard)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, srv.lastQuery.TestNumber)
	assert.Nil(t, srv.lastQuery.ZeroAsAbsent)
	assert.Equal(t, models.RankByAverage, srv.lastQuery.Metric)
}

func TestPerformanceHandlerRejectsInvalidParameters(t *testing.T) {
	handler := NewPerformanceHandler(&fakePerformanceSrv{})

	for _, target := range []string{
		"/performance/rankings?classroom_id=c&test=abc",
		"/performance/rankings?classroom_id=c&test=-1",
		"/performance/rankings?classroom_id=c&metric=median",
		"/performance/rankings?classroom_id=c&zero_absent=maybe",
	} {
		rec, _ := performRequest(t, http.MethodGet, target, nil, handler.Rankings)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestPerformanceHandlerPropagatesServiceErrors(t *testing.T) {
	handler := NewPerformanceHandler(&fakePerformanceSrv{err: appErrors.ErrStaleSnapshot})

	rec, envelope := performRequest(t, http.MethodGet, "/performance/rankings?classroom_id=c&viewer_id=v", nil, handler.Rankings)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, appErrors.ErrStaleSnapshot.Code, envelope.Error["code"])
}

func TestPerformanceHandlerExportRankings(t *testing.T) {
	srv := &fakePerformanceSrv{export: []byte("rank,student_id\n1,s1\n")}
	handler := NewPerformanceHandler(srv)

	rec, _ := performRequest(t, http.MethodGet, "/performance/rankings/export?classroom_id=class-1&test=3", nil, handler.ExportRankings)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="rankings-class-1-test-3.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "rank,student_id\n1,s1\n", rec.Body.String())
}

func TestPerformanceHandlerStudentTrendUsesPathParam(t *testing.T) {
	srv := &fakePerformanceSrv{trend: &dto.StudentTrendView{StudentID: "s2"}}
	handler := NewPerformanceHandler(srv)

	rec, envelope := performRequest(t, http.MethodGet, "/performance/students/s2/trend?classroom_id=class-1&subject=maths",
		gin.Params{{Key: "student_id", Value: "s2"}}, handler.StudentTrend)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s2", srv.lastQuery.StudentID)
	assert.Equal(t, "maths", srv.lastQuery.Subject)
	assert.Equal(t, "s2", envelope.Data["studentId"])
}

func TestPerformanceHandlerSwotAudience(t *testing.T) {
	srv := &fakePerformanceSrv{swot: &dto.SwotView{ClassroomID: "class-1", Audience: dto.AudienceStudent}}
	handler := NewPerformanceHandler(srv)

	rec, envelope := performRequest(t, http.MethodGet, "/performance/swot?classroom_id=class-1&audience=Student&student_id=s1", nil, handler.Swot)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.AudienceStudent, srv.lastQuery.Audience)
	assert.Equal(t, "s1", srv.lastQuery.StudentID)
	assert.Equal(t, "student", envelope.Data["audience"])
}

func TestPerformanceHandlerRefresh(t *testing.T) {
	srv := &fakePerformanceSrv{}
	handler := NewPerformanceHandler(srv)

	rec, envelope := performRequest(t, http.MethodPost, "/performance/refresh?classroom_id=class-1", nil, handler.Refresh)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "class-1", srv.refreshed)
	assert.Equal(t, true, envelope.Data["refreshed"])
}

func TestPerformanceHandlerSystem(t *testing.T) {
	srv := &fakePerformanceSrv{}
	handler := NewPerformanceHandler(srv)

	rec, envelope := performRequest(t, http.MethodGet, "/performance/system", nil, handler.System)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, srv.systemCalled)
	assert.Equal(t, false, envelope.Meta["cache_hit"])
}

func TestPerformanceHandlerWithoutService(t *testing.T) {
	handler := NewPerformanceHandler(nil)

	rec, _ := performRequest(t, http.MethodGet, "/performance/dashboard?classroom_id=c", nil, handler.Dashboard)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
