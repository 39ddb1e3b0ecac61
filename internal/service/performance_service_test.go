package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/scorecard-api/internal/dto"
	"github.com/noah-isme/scorecard-api/internal/models"
	appErrors "github.com/noah-isme/scorecard-api/pkg/errors"
)

type fakePerformanceRepo struct {
	results     []models.RawRecord
	malformed   int
	roster      []models.RosterEntry
	swot        models.RawSwotPayload
	resultsErr  error
	resultCalls int32
	swotCalls   int32

	mu   sync.Mutex
	gate chan struct{}
}

func (f *fakePerformanceRepo) ListResults(ctx context.Context, _ models.PerformanceFilter) (models.ResultRows, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	atomic.AddInt32(&f.resultCalls, 1)
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.ResultRows{}, ctx.Err()
		}
	}
	if f.resultsErr != nil {
		return models.ResultRows{}, f.resultsErr
	}
	return models.ResultRows{Records: f.results, Malformed: f.malformed}, nil
}

func (f *fakePerformanceRepo) ListRoster(context.Context, models.PerformanceFilter) ([]models.RosterEntry, error) {
	return f.roster, nil
}

func (f *fakePerformanceRepo) LatestSwot(context.Context, models.PerformanceFilter) (models.RawSwotPayload, error) {
	atomic.AddInt32(&f.swotCalls, 1)
	return f.swot, nil
}

func (f *fakePerformanceRepo) setGate(gate chan struct{}) {
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
}

func newFakeRepo() *fakePerformanceRepo {
	return &fakePerformanceRepo{
		results: []models.RawRecord{
			{"student_id": "s1", "student_name": "Asha", "test_number": float64(1), "phy_score": float64(60), "chem_score": float64(60), "maths_score": float64(60)},
			{"student_id": "s2", "student_name": "Ravi", "test_number": float64(1), "phy_score": float64(50), "chem_score": float64(70), "maths_score": float64(60)},
			{"student_id": "s1", "student_name": "Asha", "test_number": float64(2), "phy_score": float64(80), "chem_score": float64(70), "maths_score": float64(75)},
			{"student_id": "s2", "student_name": "Ravi", "test_number": float64(2), "phy_score": float64(70), "chem_score": float64(80), "maths_score": float64(75)},
			{"test_number": float64(2), "phy_score": float64(10)},
		},
		roster: []models.RosterEntry{{StudentID: "s1", Name: "Asha Rao"}, {StudentID: "s3", Name: "Meera"}},
		swot: models.RawSwotPayload{
			"improvement-over-time":          map[string]interface{}{"Physics": []interface{}{"Optics"}},
			"weakness-on-high-impact-topics": map[string]interface{}{"Physics": []interface{}{"Electrostatics"}},
			"brand-new-metric":               map[string]interface{}{"Physics": []interface{}{"x"}},
		},
	}
}

func newTestPerformanceService(t *testing.T, repo PerformanceRepository, cacheRepo CacheRepository) (*PerformanceService, *MetricsService) {
	t.Helper()
	metrics := NewMetricsService()
	cache := NewCacheService(cacheRepo, metrics, time.Minute, zap.NewNop(), cacheRepo != nil)
	svc, err := NewPerformanceService(PerformanceServiceParams{
		Repo:    repo,
		Cache:   cache,
		Metrics: metrics,
		Logger:  zap.NewNop(),
		Config: PerformanceServiceConfig{
			MaxScore:        300,
			SubjectMaxScore: 100,
			ZeroAsAbsent:    true,
			Deny: map[dto.Audience][]models.SwotExclusion{
				dto.AudienceStudent: {{Category: models.SwotThreats, Title: "Weakness on High-Impact Topics"}},
			},
		},
	})
	require.NoError(t, err)
	return svc, metrics
}

func TestNewPerformanceServiceRejectsInvalidMaxScore(t *testing.T) {
	_, err := NewPerformanceService(PerformanceServiceParams{Config: PerformanceServiceConfig{MaxScore: 0}})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInvalidConfig)
}

func TestPerformanceServiceDashboardCachesRawSnapshotOnly(t *testing.T) {
	repo := newFakeRepo()
	cacheRepo := &stubCacheRepo{}
	svc, metrics := newTestPerformanceService(t, repo, cacheRepo)
	ctx := context.Background()

	first, hit, err := svc.Dashboard(ctx, dto.PerformanceQuery{ClassroomID: "class-1"})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, first.SelectedTest.Number)
	assert.Equal(t, "Test 2", first.SelectedTest.Label)
	require.Len(t, first.Students, 3)
	assert.Equal(t, "Asha Rao", first.Students[0].Name)
	assert.False(t, first.Students[2].HasData)
	assert.Equal(t, "+15%", first.Trends.Improvement.Display)
	assert.Equal(t, 1, first.Diagnostics.MissingStudentID)

	require.Len(t, cacheRepo.store, 1)
	for key := range cacheRepo.store {
		assert.True(t, strings.HasPrefix(key, "performance:snapshot:class-1:"))
	}

	test := 1
	second, hit, err := svc.Dashboard(ctx, dto.PerformanceQuery{ClassroomID: "class-1", TestNumber: &test, Subject: "chem"})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, int32(1), atomic.LoadInt32(&repo.resultCalls))
	assert.Equal(t, 1, second.SelectedTest.Number)
	assert.Equal(t, "chemistry", second.Subject)
	require.NotNil(t, second.Trends.SubjectImprovement)
	assert.Equal(t, "+10%", second.Trends.SubjectImprovement.Display)

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(2), snap.PipelineRuns)
	assert.Equal(t, uint64(2), snap.RecordsSkipped[SkipMissingStudentID])
}

func TestPerformanceServiceRequiresClassroom(t *testing.T) {
	svc, _ := newTestPerformanceService(t, newFakeRepo(), nil)

	_, _, err := svc.Dashboard(context.Background(), dto.PerformanceQuery{})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestPerformanceServiceFetchFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.resultsErr = assert.AnError
	svc, _ := newTestPerformanceService(t, repo, nil)

	_, _, err := svc.Rankings(context.Background(), dto.PerformanceQuery{ClassroomID: "class-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrUpstreamFailed)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestPerformanceServiceZeroPolicyOverride(t *testing.T) {
	repo := newFakeRepo()
	repo.results = append(repo.results, models.RawRecord{"student_id": "s3", "test_number": float64(2), "phy_score": float64(90), "chem_score": float64(0), "maths_score": float64(60)})
	svc, _ := newTestPerformanceService(t, repo, nil)
	ctx := context.Background()

	dashboard, _, err := svc.Dashboard(ctx, dto.PerformanceQuery{ClassroomID: "class-1", Subject: "chem"})
	require.NoError(t, err)
	require.Len(t, dashboard.SubjectSeries, 2)
	assert.Equal(t, 2, dashboard.SubjectSeries[1].Count)

	keepZero := false
	dashboard, _, err = svc.Dashboard(ctx, dto.PerformanceQuery{ClassroomID: "class-1", Subject: "chem", ZeroAsAbsent: &keepZero})
	require.NoError(t, err)
	assert.Equal(t, 3, dashboard.SubjectSeries[1].Count)
	assert.Equal(t, float64(0), dashboard.SubjectSeries[1].Min)
}

func TestPerformanceServiceRankingsSearchUsesRosterNames(t *testing.T) {
	repo := newFakeRepo()
	repo.results = append(repo.results, models.RawRecord{"student_id": "s3", "test_number": float64(2), "total": float64(150)})
	svc, _ := newTestPerformanceService(t, repo, nil)

	ranking, _, err := svc.Rankings(context.Background(), dto.PerformanceQuery{ClassroomID: "class-1", Search: "meera"})
	require.NoError(t, err)
	require.Len(t, ranking.Entries, 1)
	assert.Equal(t, "s3", ranking.Entries[0].StudentID)
	assert.Equal(t, "Meera", ranking.Entries[0].DisplayName)
	assert.Equal(t, 1, ranking.Entries[0].Rank)
}

func TestPerformanceServiceExportRankings(t *testing.T) {
	svc, _ := newTestPerformanceService(t, newFakeRepo(), nil)

	csv, err := svc.ExportRankings(context.Background(), dto.PerformanceQuery{ClassroomID: "class-1"})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(csv)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "rank,student_id,student_name,average", lines[0])
	assert.Equal(t, "1,s1,Asha Rao,225.00", lines[1])
	assert.Equal(t, "1,s2,Ravi,225.00", lines[2])
	assert.Equal(t, ",s3,Meera,", lines[3])
}

func TestPerformanceServiceStudentTrend(t *testing.T) {
	svc, _ := newTestPerformanceService(t, newFakeRepo(), nil)
	ctx := context.Background()

	view, _, err := svc.StudentTrend(ctx, dto.PerformanceQuery{ClassroomID: "class-1", StudentID: "s2", Subject: "maths"})
	require.NoError(t, err)
	assert.Equal(t, "+15%", view.Improvement.Display)
	require.NotNil(t, view.SubjectImprovement)
	assert.Equal(t, 15, view.SubjectImprovement.Value)

	_, _, err = svc.StudentTrend(ctx, dto.PerformanceQuery{ClassroomID: "class-1", StudentID: "s3"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, _, err = svc.StudentTrend(ctx, dto.PerformanceQuery{ClassroomID: "class-1"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestPerformanceServiceSwotAudiences(t *testing.T) {
	repo := newFakeRepo()
	svc, metrics := newTestPerformanceService(t, repo, &stubCacheRepo{})
	ctx := context.Background()

	educator, hit, err := svc.Swot(ctx, dto.PerformanceQuery{ClassroomID: "class-1"})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, dto.AudienceEducator, educator.Audience)
	require.Len(t, educator.Subjects, 1)
	assert.Len(t, educator.Subjects[0].Threats, 1)
	assert.Equal(t, []string{"brand-new-metric"}, educator.UnknownCodes)

	student, hit, err := svc.Swot(ctx, dto.PerformanceQuery{ClassroomID: "class-1", Audience: dto.AudienceStudent})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Empty(t, student.Subjects[0].Threats)
	assert.Len(t, student.Subjects[0].Strengths, 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&repo.swotCalls))

	_, _, err = svc.Swot(ctx, dto.PerformanceQuery{ClassroomID: "class-1", Audience: "parents"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	assert.Equal(t, uint64(2), metrics.Snapshot().UnknownSwotCodes)
}

func TestPerformanceServiceDiscardsSupersededLoad(t *testing.T) {
	repo := newFakeRepo()
	gate := make(chan struct{})
	repo.setGate(gate)
	svc, metrics := newTestPerformanceService(t, repo, nil)
	ctx := context.Background()

	type outcome struct {
		err error
	}
	slow := make(chan outcome, 1)
	go func() {
		_, _, err := svc.Dashboard(ctx, dto.PerformanceQuery{ClassroomID: "class-1", ViewerID: "viewer-1"})
		slow <- outcome{err: err}
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&repo.resultCalls) == 1 }, time.Second, time.Millisecond)

	repo.setGate(nil)
	test := 1
	fresh, _, err := svc.Dashboard(ctx, dto.PerformanceQuery{ClassroomID: "class-1", ViewerID: "viewer-1", TestNumber: &test})
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.SelectedTest.Number)

	close(gate)
	result := <-slow
	require.Error(t, result.err)
	assert.ErrorIs(t, result.err, appErrors.ErrStaleSnapshot)
	assert.Equal(t, uint64(1), metrics.Snapshot().StaleLoads)
}

func TestPerformanceServiceRefresh(t *testing.T) {
	cacheRepo := &stubCacheRepo{}
	repo := newFakeRepo()
	svc, _ := newTestPerformanceService(t, repo, cacheRepo)
	ctx := context.Background()

	_, _, err := svc.Dashboard(ctx, dto.PerformanceQuery{ClassroomID: "class-1"})
	require.NoError(t, err)
	_, _, err = svc.Swot(ctx, dto.PerformanceQuery{ClassroomID: "class-1"})
	require.NoError(t, err)
	require.Len(t, cacheRepo.store, 2)

	require.NoError(t, svc.Refresh(ctx, "class-1"))
	assert.Empty(t, cacheRepo.store)
	assert.ErrorIs(t, svc.Refresh(ctx, " "), appErrors.ErrValidation)

	_, hit, err := svc.Dashboard(ctx, dto.PerformanceQuery{ClassroomID: "class-1"})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int32(2), atomic.LoadInt32(&repo.resultCalls))
}

type recordingWarmer struct {
	keys []string
}

func (w *recordingWarmer) Enqueue(classroomID string) (bool, error) {
	w.keys = append(w.keys, classroomID)
	return true, nil
}

func TestPerformanceServiceRefreshSchedulesWarmUp(t *testing.T) {
	cacheRepo := &stubCacheRepo{}
	repo := newFakeRepo()
	warmer := &recordingWarmer{}
	metrics := NewMetricsService()
	svc, err := NewPerformanceService(PerformanceServiceParams{
		Repo:    repo,
		Cache:   NewCacheService(cacheRepo, metrics, time.Minute, zap.NewNop(), true),
		Metrics: metrics,
		Warmer:  warmer,
		Config:  PerformanceServiceConfig{MaxScore: 300},
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, svc.Refresh(ctx, " class-1 "))
	assert.Equal(t, []string{"class-1"}, warmer.keys)

	require.NoError(t, svc.Warm(ctx, "class-1"))
	assert.Contains(t, cacheRepo.store, "performance:snapshot:class-1:-")

	_, hit, err := svc.Dashboard(ctx, dto.PerformanceQuery{ClassroomID: "class-1"})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, int32(1), atomic.LoadInt32(&repo.resultCalls))
}

func TestPerformanceServiceDashboardAndSwotDoNotSupersedeEachOther(t *testing.T) {
	repo := newFakeRepo()
	gate := make(chan struct{})
	repo.setGate(gate)
	svc, metrics := newTestPerformanceService(t, repo, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, _, err := svc.Dashboard(ctx, dto.PerformanceQuery{ClassroomID: "class-1", ViewerID: "viewer-1"})
		done <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&repo.resultCalls) == 1 }, time.Second, time.Millisecond)

	view, _, err := svc.Swot(ctx, dto.PerformanceQuery{ClassroomID: "class-1", ViewerID: "viewer-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, view.Subjects)

	close(gate)
	require.NoError(t, <-done)
	assert.Zero(t, metrics.Snapshot().StaleLoads)
}

func TestPerformanceServiceReportsMalformedRows(t *testing.T) {
	repo := newFakeRepo()
	repo.malformed = 2
	cacheRepo := &stubCacheRepo{}
	svc, metrics := newTestPerformanceService(t, repo, cacheRepo)
	ctx := context.Background()

	dashboard, _, err := svc.Dashboard(ctx, dto.PerformanceQuery{ClassroomID: "class-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, dashboard.Diagnostics.MalformedRows)
	assert.Len(t, dashboard.Students, 3)

	cached, hit, err := svc.Dashboard(ctx, dto.PerformanceQuery{ClassroomID: "class-1"})
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, 2, cached.Diagnostics.MalformedRows)
	assert.Equal(t, uint64(4), metrics.Snapshot().RecordsSkipped[SkipMalformedRow])
}

func TestPerformanceServiceKeepsLargeIDsAcrossCache(t *testing.T) {
	repo := &fakePerformanceRepo{results: []models.RawRecord{
		{"student_id": json.Number("9007199254740993"), "test_number": json.Number("1"), "phy_score": json.Number("80")},
	}}
	svc, _ := newTestPerformanceService(t, repo, &stubCacheRepo{})
	ctx := context.Background()

	fresh, hit, err := svc.Rankings(ctx, dto.PerformanceQuery{ClassroomID: "class-1"})
	require.NoError(t, err)
	require.False(t, hit)
	cached, hit, err := svc.Rankings(ctx, dto.PerformanceQuery{ClassroomID: "class-1"})
	require.NoError(t, err)
	require.True(t, hit)

	require.Len(t, cached.Entries, 1)
	assert.Equal(t, "9007199254740993", fresh.Entries[0].StudentID)
	assert.Equal(t, fresh.Entries[0].StudentID, cached.Entries[0].StudentID)
}

func TestPerformanceServiceRefreshEscapesClassroomPattern(t *testing.T) {
	cacheRepo := &stubCacheRepo{}
	svc, _ := newTestPerformanceService(t, newFakeRepo(), cacheRepo)
	ctx := context.Background()

	for _, classroom := range []string{"class[1]", "class1"} {
		_, _, err := svc.Dashboard(ctx, dto.PerformanceQuery{ClassroomID: classroom})
		require.NoError(t, err)
	}
	require.NoError(t, svc.Refresh(ctx, "class[1]"))

	assert.Contains(t, cacheRepo.deleted, `performance:snapshot:class\[1\]:*`)
	assert.Contains(t, cacheRepo.store, "performance:snapshot:class1:-")
	assert.NotContains(t, cacheRepo.store, "performance:snapshot:class[1]:-")
}
