package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/scorecard-api/internal/analytics"
	"github.com/noah-isme/scorecard-api/internal/dto"
	"github.com/noah-isme/scorecard-api/internal/models"
	appErrors "github.com/noah-isme/scorecard-api/pkg/errors"
	"github.com/noah-isme/scorecard-api/pkg/export"
)

// PerformanceRepository describes the raw data source of the performance dashboard.
type PerformanceRepository interface {
	ListResults(ctx context.Context, filter models.PerformanceFilter) (models.ResultRows, error)
	ListRoster(ctx context.Context, filter models.PerformanceFilter) ([]models.RosterEntry, error)
	LatestSwot(ctx context.Context, filter models.PerformanceFilter) (models.RawSwotPayload, error)
}

// SnapshotWarmer schedules a background refetch of a classroom snapshot.
type SnapshotWarmer interface {
	Enqueue(classroomID string) (bool, error)
}

// PerformanceServiceConfig tunes performance dashboard behaviour.
type PerformanceServiceConfig struct {
	MaxScore        float64
	SubjectMaxScore float64
	ZeroAsAbsent    bool
	SnapshotTTL     time.Duration
	FetchTimeout    time.Duration
	Deny            map[dto.Audience][]models.SwotExclusion
}

// PerformanceServiceParams groups constructor dependencies.
type PerformanceServiceParams struct {
	Repo    PerformanceRepository
	Cache   *CacheService
	Metrics *MetricsService
	Warmer  SnapshotWarmer
	Logger  *zap.Logger
	Config  PerformanceServiceConfig
}

// PerformanceService fetches a raw snapshot, runs the analytics pipeline over
// it and shapes the result for the API. Nothing derived is ever cached.
type PerformanceService struct {
	repo     PerformanceRepository
	cache    *CacheService
	metrics  *MetricsService
	warmer   SnapshotWarmer
	logger   *zap.Logger
	cfg      PerformanceServiceConfig
	guard    *loadGuard
	exporter *export.CSVExporter
}

// NewPerformanceService validates the aggregation settings and constructs the service.
func NewPerformanceService(params PerformanceServiceParams) (*PerformanceService, error) {
	cfg := params.Config
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.Deny == nil {
		cfg.Deny = map[dto.Audience][]models.SwotExclusion{}
	}
	probe := analytics.Options{MaxPossibleScore: cfg.MaxScore, SubjectMaxScore: cfg.SubjectMaxScore}
	if err := probe.Validate(); err != nil {
		return nil, err
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PerformanceService{
		repo:     params.Repo,
		cache:    params.Cache,
		metrics:  params.Metrics,
		warmer:   params.Warmer,
		logger:   logger,
		cfg:      cfg,
		guard:    newLoadGuard(),
		exporter: export.NewCSVExporter(),
	}, nil
}

// Dashboard computes the full dashboard for one view. The boolean reports
// whether the raw snapshot came from cache.
func (s *PerformanceService) Dashboard(ctx context.Context, q dto.PerformanceQuery) (*dto.PerformanceDashboard, bool, error) {
	report, hit, err := s.compute(ctx, q, loadDashboard)
	if err != nil {
		return nil, false, err
	}
	subject := ""
	if q.Subject != "" {
		subject = analytics.CanonicalSubject(q.Subject)
	}
	return dto.NewPerformanceDashboard(q.ClassroomID, subject, report), hit, nil
}

// Rankings returns only the leaderboard of a view.
func (s *PerformanceService) Rankings(ctx context.Context, q dto.PerformanceQuery) (models.Ranking, bool, error) {
	report, hit, err := s.compute(ctx, q, loadRankings)
	if err != nil {
		return models.Ranking{}, false, err
	}
	return report.Ranking, hit, nil
}

// ExportRankings renders the leaderboard of a view as CSV.
func (s *PerformanceService) ExportRankings(ctx context.Context, q dto.PerformanceQuery) ([]byte, error) {
	report, _, err := s.compute(ctx, q, loadExport)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(report.Students))
	for _, student := range report.Students {
		names[student.StudentID] = student.DisplayName
	}
	payload, err := s.exporter.Render(export.RankingDataset(report.Ranking, names))
	if err != nil {
		return nil, appErrors.Extend(appErrors.ErrInternal, err, "failed to render ranking export")
	}
	return payload, nil
}

// StudentTrend returns one student's improvement across the tests they sat.
func (s *PerformanceService) StudentTrend(ctx context.Context, q dto.PerformanceQuery) (*dto.StudentTrendView, bool, error) {
	if strings.TrimSpace(q.StudentID) == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}
	snapshot, hit, err := s.loadResults(ctx, q, loadTrend)
	if err != nil {
		return nil, false, err
	}
	pipeline, err := s.pipeline(snapshot.Roster, q.ZeroAsAbsent)
	if err != nil {
		return nil, false, err
	}
	start := time.Now()
	trend, found, err := pipeline.StudentTrend(snapshot.Results, q.StudentID, q.Subject)
	s.metrics.ObservePipeline("student_trend", time.Since(start), models.Diagnostics{})
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no results for student %s", q.StudentID))
	}
	view := &dto.StudentTrendView{StudentID: q.StudentID, Improvement: dto.NewDeltaView(trend.Improvement)}
	if q.Subject != "" {
		subject := dto.NewDeltaView(trend.SubjectImprovement)
		view.SubjectImprovement = &subject
	}
	return view, hit, nil
}

// Swot categorises the latest SWOT report and hides the titles denied to the
// requested audience.
func (s *PerformanceService) Swot(ctx context.Context, q dto.PerformanceQuery) (*dto.SwotView, bool, error) {
	if err := requireClassroom(q); err != nil {
		return nil, false, err
	}
	audience := q.Audience
	if audience == "" {
		audience = dto.AudienceEducator
	}
	deny, ok := s.denylist(audience)
	if !ok {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown audience %q", q.Audience))
	}

	filter := q.Filter()
	key := makeCacheKey("swot", filter.ClassroomID, filter.StudentID)
	generation := s.guard.begin(q.ViewerID, loadSwot)

	var payload models.RawSwotPayload
	hit := s.cache.Get(ctx, key, &payload)
	if !hit {
		fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
		start := time.Now()
		fetched, err := s.repo.LatestSwot(fetchCtx, filter)
		s.metrics.ObserveDBQuery("performance_swot", time.Since(start))
		if err != nil {
			return nil, false, appErrors.Extend(appErrors.ErrUpstreamFailed, err, "")
		}
		payload = fetched
		s.cache.Set(ctx, key, payload, s.cfg.SnapshotTTL)
	}
	if err := s.checkFresh(q.ViewerID, loadSwot, generation); err != nil {
		return nil, false, err
	}

	pipeline, err := s.pipeline(nil, q.ZeroAsAbsent)
	if err != nil {
		return nil, false, err
	}
	start := time.Now()
	subjects, report := pipeline.Swot(payload, deny)
	diagnostics := models.Diagnostics{UnknownMetricCodes: report.UnknownCodes}
	s.metrics.ObservePipeline("swot", time.Since(start), diagnostics)
	if len(report.UnknownCodes) > 0 || report.Malformed > 0 {
		s.logger.Warn("swot payload partially categorised",
			zap.String("classroom_id", filter.ClassroomID),
			zap.Strings("unknown_codes", report.UnknownCodes),
			zap.Int("malformed", report.Malformed),
		)
	}

	return &dto.SwotView{
		ClassroomID:  filter.ClassroomID,
		StudentID:    filter.StudentID,
		Audience:     audience,
		Subjects:     subjects,
		UnknownCodes: report.UnknownCodes,
	}, hit, nil
}

// Refresh drops every cached snapshot of a classroom so the next request
// refetches from storage. When a warmer is configured the classroom-wide
// snapshot is refetched in the background.
func (s *PerformanceService) Refresh(ctx context.Context, classroomID string) error {
	classroomID = strings.TrimSpace(classroomID)
	if classroomID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "classroom_id is required")
	}
	classroom := escapePattern(strings.ReplaceAll(classroomID, ":", "|"))
	for _, kind := range []string{"snapshot", "swot"} {
		if err := s.cache.Invalidate(ctx, fmt.Sprintf("performance:%s:%s:*", kind, classroom)); err != nil {
			return appErrors.Extend(appErrors.ErrUnavailable, err, "failed to invalidate cached snapshot")
		}
	}
	if s.warmer != nil && s.cache.Enabled() {
		if _, err := s.warmer.Enqueue(classroomID); err != nil {
			s.logger.Warn("snapshot warm-up not scheduled", zap.String("classroom_id", classroomID), zap.Error(err))
		}
	}
	return nil
}

// Warm fetches and caches the classroom-wide raw snapshot.
func (s *PerformanceService) Warm(ctx context.Context, classroomID string) error {
	_, _, err := s.loadResults(ctx, dto.PerformanceQuery{ClassroomID: classroomID}, loadWarm)
	return err
}

// SystemMetrics returns the instrumentation snapshot.
func (s *PerformanceService) SystemMetrics() models.SystemMetrics {
	return s.metrics.Snapshot()
}

func (s *PerformanceService) compute(ctx context.Context, q dto.PerformanceQuery, kind loadKind) (*models.PerformanceReport, bool, error) {
	snapshot, hit, err := s.loadResults(ctx, q, kind)
	if err != nil {
		return nil, false, err
	}
	pipeline, err := s.pipeline(snapshot.Roster, q.ZeroAsAbsent)
	if err != nil {
		return nil, false, err
	}
	start := time.Now()
	report, err := pipeline.Compute(snapshot.Results, q.View())
	if err != nil {
		return nil, false, err
	}
	report.Diagnostics.MalformedRows = snapshot.MalformedRows
	s.metrics.ObservePipeline("dashboard", time.Since(start), report.Diagnostics)
	s.logDiagnostics(q.ClassroomID, report.Diagnostics)
	return report, hit, nil
}

// loadResults returns the raw results and roster of a classroom, fetching
// both concurrently on a cache miss. A load superseded by a newer request
// of the same kind from the same viewer fails with ErrStaleSnapshot.
func (s *PerformanceService) loadResults(ctx context.Context, q dto.PerformanceQuery, kind loadKind) (models.Snapshot, bool, error) {
	if err := requireClassroom(q); err != nil {
		return models.Snapshot{}, false, err
	}
	filter := q.Filter()
	key := makeCacheKey("snapshot", filter.ClassroomID, filter.EducatorID)
	generation := s.guard.begin(q.ViewerID, kind)

	var snapshot models.Snapshot
	if s.cache.Get(ctx, key, &snapshot) {
		if err := s.checkFresh(q.ViewerID, kind, generation); err != nil {
			return models.Snapshot{}, false, err
		}
		return snapshot, true, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()
	g, gctx := errgroup.WithContext(fetchCtx)
	g.Go(func() error {
		start := time.Now()
		rows, err := s.repo.ListResults(gctx, filter)
		s.metrics.ObserveDBQuery("performance_results", time.Since(start))
		if err != nil {
			return err
		}
		snapshot.Results = rows.Records
		snapshot.MalformedRows = rows.Malformed
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		roster, err := s.repo.ListRoster(gctx, filter)
		s.metrics.ObserveDBQuery("performance_roster", time.Since(start))
		if err != nil {
			return err
		}
		snapshot.Roster = roster
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("performance snapshot fetch failed", zap.String("classroom_id", filter.ClassroomID), zap.Error(err))
		return models.Snapshot{}, false, appErrors.Extend(appErrors.ErrUpstreamFailed, err, "")
	}
	if err := s.checkFresh(q.ViewerID, kind, generation); err != nil {
		return models.Snapshot{}, false, err
	}

	s.cache.Set(ctx, key, snapshot, s.cfg.SnapshotTTL)
	return snapshot, false, nil
}

func (s *PerformanceService) pipeline(roster []models.RosterEntry, zeroAsAbsent *bool) (*analytics.Pipeline, error) {
	zero := s.cfg.ZeroAsAbsent
	if zeroAsAbsent != nil {
		zero = *zeroAsAbsent
	}
	return analytics.NewPipeline(analytics.Options{
		Roster:            roster,
		TreatZeroAsAbsent: zero,
		MaxPossibleScore:  s.cfg.MaxScore,
		SubjectMaxScore:   s.cfg.SubjectMaxScore,
	})
}

func (s *PerformanceService) denylist(audience dto.Audience) ([]models.SwotExclusion, bool) {
	switch audience {
	case dto.AudienceInstitution, dto.AudienceEducator, dto.AudienceStudent:
		return s.cfg.Deny[audience], true
	default:
		return nil, false
	}
}

func (s *PerformanceService) checkFresh(viewerID string, kind loadKind, generation uint64) error {
	if s.guard.current(viewerID, kind, generation) {
		return nil
	}
	s.metrics.RecordStaleLoad()
	s.logger.Info("discarding superseded snapshot load", zap.String("viewer_id", viewerID), zap.String("kind", string(kind)))
	return appErrors.ErrStaleSnapshot
}

func (s *PerformanceService) logDiagnostics(classroomID string, diag models.Diagnostics) {
	if diag.Skipped() > 0 || diag.InvalidScoreValues > 0 {
		s.logger.Warn("performance records skipped",
			zap.String("classroom_id", classroomID),
			zap.Int("received", diag.RecordsReceived),
			zap.Int("missing_student_id", diag.MissingStudentID),
			zap.Int("invalid_test_number", diag.InvalidTestNumber),
			zap.Int("malformed_rows", diag.MalformedRows),
			zap.Int("invalid_score_values", diag.InvalidScoreValues),
		)
	}
	for _, w := range diag.IntegrityWarnings {
		s.logger.Warn("performance data integrity",
			zap.String("classroom_id", classroomID),
			zap.String("student_id", w.StudentID),
			zap.Int("test_number", w.TestNumber),
			zap.String("detail", w.Message),
		)
	}
}

func requireClassroom(q dto.PerformanceQuery) error {
	if strings.TrimSpace(q.ClassroomID) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "classroom_id is required")
	}
	return nil
}

// loadKind names the request a snapshot load serves. A newer request only
// supersedes older loads of the same kind, so a dashboard and a SWOT report
// fetched side by side never cancel each other.
type loadKind string

const (
	loadDashboard loadKind = "dashboard"
	loadRankings  loadKind = "rankings"
	loadExport    loadKind = "export"
	loadTrend     loadKind = "trend"
	loadSwot      loadKind = "swot"
	loadWarm      loadKind = "warm"
)

type guardKey struct {
	viewer string
	kind   loadKind
}

// loadGuard hands out a generation per viewer and kind. Only the load holding
// the latest generation may publish its result.
type loadGuard struct {
	mu          sync.Mutex
	generations map[guardKey]uint64
}

func newLoadGuard() *loadGuard {
	return &loadGuard{generations: make(map[guardKey]uint64)}
}

func (g *loadGuard) begin(viewerID string, kind loadKind) uint64 {
	if viewerID == "" {
		return 0
	}
	key := guardKey{viewer: viewerID, kind: kind}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.generations[key]++
	return g.generations[key]
}

func (g *loadGuard) current(viewerID string, kind loadKind, generation uint64) bool {
	if viewerID == "" {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generations[guardKey{viewer: viewerID, kind: kind}] == generation
}
