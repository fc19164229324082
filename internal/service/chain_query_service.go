package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/campuschain/feedback-api/internal/chain"
	"github.com/campuschain/feedback-api/internal/models"
	appErrors "github.com/campuschain/feedback-api/pkg/errors"
)

type ledgerReader interface {
	CourseIDs(ctx context.Context) ([]int64, error)
	CourseByID(ctx context.Context, id int64) (*chain.CourseRecord, error)
	CourseTeachers(ctx context.Context, courseID int64) ([]string, error)
	TeacherByID(ctx context.Context, id string) (*chain.TeacherRecord, error)
	AllFeedback(ctx context.Context) ([]chain.FeedbackEntry, error)
	AdminAddress(ctx context.Context) (common.Address, error)
}

type courseMetaReader interface {
	FindByIDs(ctx context.Context, courseIDs []int64) (map[int64]models.Course, error)
}

type readCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type roleCounter interface {
	CountByRole(ctx context.Context, role models.UserRole) (int, error)
}

const (
	cacheKeyCourses  = "chain:courses"
	cacheKeyFeedback = "chain:feedback"
	cacheKeyAverages = "chain:averages:%s:%d"
)

// ChainQueryService is the read side: it aggregates contract views with
// off-chain metadata and serves them through a short-TTL cache. The ledger is
// authoritative; every aggregate here is derivable from it.
type ChainQueryService struct {
	ledger   ledgerReader
	courses  courseMetaReader
	cache    readCache
	users    roleCounter
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewChainQueryService constructs ChainQueryService.
func NewChainQueryService(ledger ledgerReader, courses courseMetaReader, cache readCache, users roleCounter, cacheTTL time.Duration, logger *zap.Logger) *ChainQueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &ChainQueryService{
		ledger:   ledger,
		courses:  courses,
		cache:    cache,
		users:    users,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// ListCourses returns every on-chain course joined with its teacher set and
// off-chain metadata.
func (s *ChainQueryService) ListCourses(ctx context.Context) ([]models.CourseView, error) {
	if s.cache != nil {
		var cached []models.CourseView
		if err := s.cache.Get(ctx, cacheKeyCourses, &cached); err == nil {
			return cached, nil
		}
	}

	ids, err := s.ledger.CourseIDs(ctx)
	if err != nil {
		return nil, chainError(err, "failed to enumerate courses")
	}

	meta := map[int64]models.Course{}
	if s.courses != nil {
		if meta, err = s.courses.FindByIDs(ctx, ids); err != nil {
			s.logger.Warn("course metadata lookup failed", zap.Error(err))
			meta = map[int64]models.Course{}
		}
	}

	views := make([]models.CourseView, 0, len(ids))
	for _, id := range ids {
		view, err := s.buildCourseView(ctx, id, meta[id])
		if err != nil {
			s.logger.Warn("course aggregation failed", zap.Int64("course_id", id), zap.Error(err))
			continue
		}
		views = append(views, *view)
	}

	sort.Slice(views, func(i, j int) bool { return views[i].CourseID < views[j].CourseID })

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKeyCourses, views, s.cacheTTL); err != nil {
			s.logger.Warn("course cache write failed", zap.Error(err))
		}
	}
	return views, nil
}

// GetCourse returns one aggregated course.
func (s *ChainQueryService) GetCourse(ctx context.Context, courseID int64) (*models.CourseView, error) {
	record, err := s.ledger.CourseByID(ctx, courseID)
	if err != nil {
		return nil, chainError(err, "failed to read course registry")
	}
	if !record.Exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found on ledger")
	}

	var meta models.Course
	if s.courses != nil {
		if rows, err := s.courses.FindByIDs(ctx, []int64{courseID}); err == nil {
			meta = rows[courseID]
		}
	}
	return s.buildCourseView(ctx, courseID, meta)
}

func (s *ChainQueryService) buildCourseView(ctx context.Context, courseID int64, meta models.Course) (*models.CourseView, error) {
	record, err := s.ledger.CourseByID(ctx, courseID)
	if err != nil {
		return nil, chainError(err, "failed to read course registry")
	}

	teacherIDs, err := s.ledger.CourseTeachers(ctx, courseID)
	if err != nil {
		return nil, chainError(err, "failed to read course teachers")
	}

	view := &models.CourseView{
		CourseID:   courseID,
		CourseName: record.Name,
		Branch:     meta.Branch,
		CourseTime: meta.CourseTime,
	}
	for _, teacherID := range teacherIDs {
		teacher := models.CourseTeacher{TeacherID: teacherID}
		if record, err := s.ledger.TeacherByID(ctx, teacherID); err == nil {
			teacher.TeacherName = record.Name
		}
		view.Teachers = append(view.Teachers, teacher)
	}
	return view, nil
}

// TeacherCourseAverages computes per-dimension rating means for a (teacher,
// course) pair from the on-chain feedback log. An empty result set is a
// distinct outcome, not a zero average.
func (s *ChainQueryService) TeacherCourseAverages(ctx context.Context, teacherID string, courseID int64) (*models.RatingAverages, error) {
	key := fmt.Sprintf(cacheKeyAverages, teacherID, courseID)
	if s.cache != nil {
		var cached models.RatingAverages
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	entries, err := s.ledger.AllFeedback(ctx)
	if err != nil {
		return nil, chainError(err, "failed to read feedback log")
	}

	var sums [4]int64
	count := 0
	for _, entry := range entries {
		if entry.TeacherID != teacherID || entry.CourseID != courseID {
			continue
		}
		for i, rating := range entry.Ratings {
			sums[i] += int64(rating)
		}
		count++
	}
	if count == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoFeedback, "no feedback recorded for this teacher and course")
	}

	averages := &models.RatingAverages{TeacherID: teacherID, CourseID: courseID, Count: count}
	var overall float64
	for i, sum := range sums {
		averages.Averages[i] = float64(sum) / float64(count)
		overall += averages.Averages[i]
	}
	averages.Overall = overall / 4

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, averages, s.cacheTTL); err != nil {
			s.logger.Warn("averages cache write failed", zap.Error(err))
		}
	}
	return averages, nil
}

// ListAllFeedback returns the decoded on-chain feedback log, newest first.
func (s *ChainQueryService) ListAllFeedback(ctx context.Context) ([]models.FeedbackRecord, error) {
	if s.cache != nil {
		var cached []models.FeedbackRecord
		if err := s.cache.Get(ctx, cacheKeyFeedback, &cached); err == nil {
			return cached, nil
		}
	}

	entries, err := s.ledger.AllFeedback(ctx)
	if err != nil {
		return nil, chainError(err, "failed to read feedback log")
	}

	records := make([]models.FeedbackRecord, 0, len(entries))
	for _, entry := range entries {
		records = append(records, feedbackRecordFromEntry(entry))
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Timestamp.After(records[j].Timestamp) })

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKeyFeedback, records, s.cacheTTL); err != nil {
			s.logger.Warn("feedback cache write failed", zap.Error(err))
		}
	}
	return records, nil
}

// DashboardStats aggregates counts for the admin dashboard.
func (s *ChainQueryService) DashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	records, err := s.ListAllFeedback(ctx)
	if err != nil {
		return nil, err
	}

	stats := &models.DashboardStats{TotalFeedbacks: len(records)}
	if len(records) > 5 {
		stats.RecentFeedback = records[:5]
	} else {
		stats.RecentFeedback = records
	}

	if s.users != nil {
		if students, err := s.users.CountByRole(ctx, models.RoleStudent); err == nil {
			stats.TotalStudents = students
		}
	}
	teacherSet := map[string]struct{}{}
	for _, record := range records {
		teacherSet[record.TeacherID] = struct{}{}
	}
	stats.TotalTeachers = len(teacherSet)

	return stats, nil
}

// ContractAdmin returns the contract's current admin address.
func (s *ChainQueryService) ContractAdmin(ctx context.Context) (string, error) {
	admin, err := s.ledger.AdminAddress(ctx)
	if err != nil {
		return "", chainError(err, "failed to read contract admin")
	}
	return admin.Hex(), nil
}

func feedbackRecordFromEntry(entry chain.FeedbackEntry) models.FeedbackRecord {
	return models.FeedbackRecord{
		ID:            entry.ID,
		StudentWallet: entry.StudentWallet.Hex(),
		TeacherID:     entry.TeacherID,
		CourseID:      entry.CourseID,
		Ratings:       models.RatingSet(entry.Ratings),
		TotalScore:    entry.TotalScore,
		Comments:      entry.Comments,
		Timestamp:     entry.Timestamp,
	}
}
