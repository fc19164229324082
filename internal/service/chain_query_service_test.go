package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuschain/feedback-api/internal/chain"
	"github.com/campuschain/feedback-api/internal/models"
	appErrors "github.com/campuschain/feedback-api/pkg/errors"
)

type mockReadCache struct {
	data map[string][]byte
	sets []string
}

func newMockReadCache() *mockReadCache {
	return &mockReadCache{data: map[string][]byte{}}
}

func (m *mockReadCache) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := m.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockReadCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	m.sets = append(m.sets, key)
	return nil
}

type mockCourseMeta struct {
	rows map[int64]models.Course
}

func (m *mockCourseMeta) FindByIDs(_ context.Context, ids []int64) (map[int64]models.Course, error) {
	out := map[int64]models.Course{}
	for _, id := range ids {
		if row, ok := m.rows[id]; ok {
			out[id] = row
		}
	}
	return out, nil
}

type mockRoleCounter struct {
	counts map[models.UserRole]int
}

func (m *mockRoleCounter) CountByRole(_ context.Context, role models.UserRole) (int, error) {
	return m.counts[role], nil
}

func queryFixture() (*mockLedger, *mockCourseMeta, *mockReadCache, *ChainQueryService) {
	ledger := newMockLedger()
	ledger.courses[42] = &chain.CourseRecord{ID: 42, Name: "Distributed Systems", Exists: true}
	ledger.courses[7] = &chain.CourseRecord{ID: 7, Name: "Databases", Exists: true}
	ledger.courseTeachers[42] = []string{"T-101"}
	ledger.teachers["T-101"] = &chain.TeacherRecord{TeacherID: "T-101", Name: "Ada", Registered: true}

	branch := "CSE"
	meta := &mockCourseMeta{rows: map[int64]models.Course{
		42: {CourseID: 42, CourseName: "Distributed Systems", Branch: &branch},
	}}
	cache := newMockReadCache()
	users := &mockRoleCounter{counts: map[models.UserRole]int{models.RoleStudent: 30}}
	svc := NewChainQueryService(ledger, meta, cache, users, time.Minute, nil)
	return ledger, meta, cache, svc
}

func feedbackEntry(teacherID string, courseID int64, ratings [4]uint8, ts int64) chain.FeedbackEntry {
	return chain.FeedbackEntry{
		StudentWallet: studentAddr,
		TeacherID:     teacherID,
		CourseID:      courseID,
		Ratings:       ratings,
		Timestamp:     time.Unix(ts, 0).UTC(),
	}
}

func TestListCoursesAggregatesLedgerAndMetadata(t *testing.T) {
	_, _, cache, svc := queryFixture()

	views, err := svc.ListCourses(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 2)

	// Sorted by course id.
	assert.Equal(t, int64(7), views[0].CourseID)
	assert.Equal(t, int64(42), views[1].CourseID)

	ds := views[1]
	assert.Equal(t, "Distributed Systems", ds.CourseName)
	require.NotNil(t, ds.Branch)
	assert.Equal(t, "CSE", *ds.Branch)
	require.Len(t, ds.Teachers, 1)
	assert.Equal(t, "Ada", ds.Teachers[0].TeacherName)

	assert.Contains(t, cache.sets, "chain:courses")
}

func TestListCoursesServesFromCache(t *testing.T) {
	ledger, _, cache, svc := queryFixture()

	_, err := svc.ListCourses(context.Background())
	require.NoError(t, err)

	// Break the ledger; the cached payload must still serve.
	ledger.courses = map[int64]*chain.CourseRecord{}
	views, err := svc.ListCourses(context.Background())
	require.NoError(t, err)
	assert.Len(t, views, 2)
	assert.NotEmpty(t, cache.data)
}

func TestGetCourseNotFound(t *testing.T) {
	_, _, _, svc := queryFixture()

	_, err := svc.GetCourse(context.Background(), 999)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTeacherCourseAveragesComputesMeans(t *testing.T) {
	ledger, _, _, svc := queryFixture()
	ledger.feedback = []chain.FeedbackEntry{
		feedbackEntry("T-101", 42, [4]uint8{5, 4, 3, 5}, 100),
		feedbackEntry("T-101", 42, [4]uint8{4, 4, 5, 3}, 200),
		feedbackEntry("T-101", 7, [4]uint8{1, 1, 1, 1}, 300),
		feedbackEntry("T-999", 42, [4]uint8{2, 2, 2, 2}, 400),
	}

	averages, err := svc.TeacherCourseAverages(context.Background(), "T-101", 42)
	require.NoError(t, err)
	assert.Equal(t, 2, averages.Count)
	assert.InDelta(t, 4.5, averages.Averages[0], 1e-9)
	assert.InDelta(t, 4.0, averages.Averages[1], 1e-9)
	assert.InDelta(t, 4.0, averages.Averages[2], 1e-9)
	assert.InDelta(t, 4.0, averages.Averages[3], 1e-9)
	assert.InDelta(t, 4.125, averages.Overall, 1e-9)
}

func TestTeacherCourseAveragesDistinguishesEmpty(t *testing.T) {
	_, _, _, svc := queryFixture()

	_, err := svc.TeacherCourseAverages(context.Background(), "T-101", 42)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoFeedback.Code, appErrors.FromError(err).Code)
}

func TestListAllFeedbackNewestFirst(t *testing.T) {
	ledger, _, _, svc := queryFixture()
	ledger.feedback = []chain.FeedbackEntry{
		feedbackEntry("T-101", 42, [4]uint8{5, 5, 5, 5}, 100),
		feedbackEntry("T-101", 42, [4]uint8{3, 3, 3, 3}, 300),
		feedbackEntry("T-101", 7, [4]uint8{4, 4, 4, 4}, 200),
	}

	records, err := svc.ListAllFeedback(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.True(t, records[0].Timestamp.After(records[1].Timestamp))
	assert.True(t, records[1].Timestamp.After(records[2].Timestamp))
	assert.Equal(t, studentAddr.Hex(), records[0].StudentWallet)
}

func TestDashboardStats(t *testing.T) {
	ledger, _, _, svc := queryFixture()
	ledger.feedback = []chain.FeedbackEntry{
		feedbackEntry("T-101", 42, [4]uint8{5, 5, 5, 5}, 100),
		feedbackEntry("T-202", 42, [4]uint8{3, 3, 3, 3}, 200),
		feedbackEntry("T-101", 7, [4]uint8{4, 4, 4, 4}, 300),
	}

	stats, err := svc.DashboardStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalFeedbacks)
	assert.Equal(t, 2, stats.TotalTeachers)
	assert.Equal(t, 30, stats.TotalStudents)
	assert.Len(t, stats.RecentFeedback, 3)
}
