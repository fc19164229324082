package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuschain/feedback-api/internal/chain"
	"github.com/campuschain/feedback-api/internal/models"
	appErrors "github.com/campuschain/feedback-api/pkg/errors"
)

type mockFeedbackStore struct {
	staged      map[string]*models.StagedFeedback
	submissions []models.FeedbackSubmission
	duplicates  map[string]bool
	purged      int64
}

func newMockFeedbackStore() *mockFeedbackStore {
	return &mockFeedbackStore{
		staged:     map[string]*models.StagedFeedback{},
		duplicates: map[string]bool{},
	}
}

func (m *mockFeedbackStore) CreateStaged(_ context.Context, staged *models.StagedFeedback) error {
	if staged.ID == "" {
		staged.ID = "stg-1"
	}
	copied := *staged
	m.staged[staged.ID] = &copied
	return nil
}

func (m *mockFeedbackStore) UpdateStagedStatus(_ context.Context, id string, status models.StagingStatus, txHash, failureReason *string) error {
	record, ok := m.staged[id]
	if !ok {
		return sql.ErrNoRows
	}
	record.Status = status
	record.TxHash = txHash
	record.FailureReason = failureReason
	return nil
}

func (m *mockFeedbackStore) FindStaged(_ context.Context, id string) (*models.StagedFeedback, error) {
	if record, ok := m.staged[id]; ok {
		return record, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockFeedbackStore) ListStagedByWallet(_ context.Context, wallet string) ([]models.StagedFeedback, error) {
	var out []models.StagedFeedback
	for _, record := range m.staged {
		if record.WalletAddress == wallet {
			out = append(out, *record)
		}
	}
	return out, nil
}

func (m *mockFeedbackStore) PurgeExpired(_ context.Context, _ time.Time) (int64, error) {
	return m.purged, nil
}

func (m *mockFeedbackStore) CreateSubmission(_ context.Context, submission *models.FeedbackSubmission) error {
	m.submissions = append(m.submissions, *submission)
	return nil
}

func (m *mockFeedbackStore) HasSubmission(_ context.Context, wallet string, courseID int64, teacherID string) (bool, error) {
	return m.duplicates[wallet], nil
}

func (m *mockFeedbackStore) ListSubmissionsByUser(_ context.Context, userID string) ([]models.FeedbackSubmission, error) {
	var out []models.FeedbackSubmission
	for _, submission := range m.submissions {
		if submission.UserID == userID {
			out = append(out, submission)
		}
	}
	return out, nil
}

type mockUserReader struct {
	users map[string]*models.User
}

func (m *mockUserReader) FindByID(_ context.Context, id string) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func linkedStudent(id string) *models.User {
	wallet := studentAddr.Hex()
	return &models.User{ID: id, FullName: "Stu Dent", Role: models.RoleStudent, WalletAddress: &wallet}
}

func feedbackFixture() (*mockLedger, *mockFeedbackStore, *mockUserReader, *mockInvalidator) {
	ledger := newMockLedger()
	ledger.students[studentAddr] = &chain.StudentRecord{Wallet: studentAddr, Name: "Stu Dent", Registered: true}
	ledger.courses[42] = &chain.CourseRecord{ID: 42, Name: "Distributed Systems", Exists: true}
	ledger.teachers["T-101"] = &chain.TeacherRecord{TeacherID: "T-101", Name: "Ada", Registered: true}
	ledger.signable[studentAddr] = true

	store := newMockFeedbackStore()
	users := &mockUserReader{users: map[string]*models.User{"usr-1": linkedStudent("usr-1")}}
	cache := &mockInvalidator{}
	return ledger, store, users, cache
}

func validSubmission() SubmitFeedbackRequest {
	return SubmitFeedbackRequest{
		CourseID:  42,
		TeacherID: "T-101",
		Ratings:   []uint8{5, 4, 3, 5},
		Comments:  "clear lectures",
	}
}

func TestSubmitFeedbackConfirmsAndIndexes(t *testing.T) {
	ledger, store, users, cache := feedbackFixture()
	svc := NewFeedbackService(ledger, &mockResolver{sender: adminAddr}, store, users, cache, false, time.Hour, nil, nil)

	receipt, err := svc.Submit(context.Background(), "usr-1", validSubmission())
	require.NoError(t, err)
	assert.Equal(t, "0xfeedback", receipt.TxHash)
	assert.False(t, receipt.Sponsored)

	staged := store.staged[receipt.StagingID]
	require.NotNil(t, staged)
	assert.Equal(t, models.StagingConfirmed, staged.Status)
	require.NotNil(t, staged.TxHash)
	assert.Equal(t, "0xfeedback", *staged.TxHash)

	require.Len(t, store.submissions, 1)
	assert.Equal(t, "Distributed Systems", store.submissions[0].CourseName)
	assert.Equal(t, []string{"chain:*"}, cache.patterns)
	assert.Contains(t, ledger.calls, "submitFeedback:"+studentAddr.Hex())
}

func TestSubmitFeedbackRejectsDuplicate(t *testing.T) {
	ledger, store, users, _ := feedbackFixture()
	store.duplicates[studentAddr.Hex()] = true
	svc := NewFeedbackService(ledger, &mockResolver{sender: adminAddr}, store, users, nil, false, time.Hour, nil, nil)

	_, err := svc.Submit(context.Background(), "usr-1", validSubmission())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, store.staged)
	assert.Empty(t, ledger.calls)
}

func TestHasSubmittedReflectsConfirmedIndex(t *testing.T) {
	ledger, store, users, _ := feedbackFixture()
	svc := NewFeedbackService(ledger, &mockResolver{sender: adminAddr}, store, users, nil, false, time.Hour, nil, nil)

	submitted, err := svc.HasSubmitted(context.Background(), "usr-1", 42, "T-101")
	require.NoError(t, err)
	assert.False(t, submitted)

	store.duplicates[studentAddr.Hex()] = true
	submitted, err = svc.HasSubmitted(context.Background(), "usr-1", 42, "T-101")
	require.NoError(t, err)
	assert.True(t, submitted)
}

func TestSubmitFeedbackRequiresLinkedWallet(t *testing.T) {
	ledger, store, users, _ := feedbackFixture()
	users.users["usr-2"] = &models.User{ID: "usr-2", Role: models.RoleStudent}
	svc := NewFeedbackService(ledger, &mockResolver{sender: adminAddr}, store, users, nil, false, time.Hour, nil, nil)

	_, err := svc.Submit(context.Background(), "usr-2", validSubmission())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestSubmitFeedbackRequiresRegisteredStudent(t *testing.T) {
	ledger, store, users, _ := feedbackFixture()
	delete(ledger.students, studentAddr)
	svc := NewFeedbackService(ledger, &mockResolver{sender: adminAddr}, store, users, nil, false, time.Hour, nil, nil)

	_, err := svc.Submit(context.Background(), "usr-1", validSubmission())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	assert.Empty(t, store.staged)
}

func TestSubmitFeedbackRejectsOutOfRangeRatings(t *testing.T) {
	ledger, store, users, _ := feedbackFixture()
	svc := NewFeedbackService(ledger, &mockResolver{sender: adminAddr}, store, users, nil, false, time.Hour, nil, nil)

	req := validSubmission()
	req.Ratings = []uint8{5, 4, 3, 6}
	_, err := svc.Submit(context.Background(), "usr-1", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSubmitFeedbackUnsignableWalletWithoutSponsorship(t *testing.T) {
	ledger, store, users, _ := feedbackFixture()
	ledger.signable[studentAddr] = false
	svc := NewFeedbackService(ledger, &mockResolver{sender: adminAddr}, store, users, nil, false, time.Hour, nil, nil)

	_, err := svc.Submit(context.Background(), "usr-1", validSubmission())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSenderUnavailable.Code, appErrors.FromError(err).Code)
	assert.Empty(t, ledger.calls)
}

func TestSubmitFeedbackSponsoredSend(t *testing.T) {
	ledger, store, users, _ := feedbackFixture()
	ledger.signable[studentAddr] = false
	svc := NewFeedbackService(ledger, &mockResolver{sender: adminAddr}, store, users, nil, true, time.Hour, nil, nil)

	receipt, err := svc.Submit(context.Background(), "usr-1", validSubmission())
	require.NoError(t, err)
	assert.True(t, receipt.Sponsored)
	// Sponsored sends come from the admin but record the student's wallet.
	assert.Contains(t, ledger.calls, "submitFeedback:"+adminAddr.Hex())
	require.Len(t, ledger.feedback, 1)
	assert.Equal(t, studentAddr, ledger.feedback[0].StudentWallet)
}

func TestSubmitFeedbackRevertMarksStagedFailed(t *testing.T) {
	ledger, store, users, _ := feedbackFixture()
	ledger.submitErr = &chain.RevertError{Method: "submitFeedback", Reason: "Ratings out of range"}
	svc := NewFeedbackService(ledger, &mockResolver{sender: adminAddr}, store, users, nil, false, time.Hour, nil, nil)

	_, err := svc.Submit(context.Background(), "usr-1", validSubmission())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrChainRevert.Code, appErrors.FromError(err).Code)

	require.Len(t, store.staged, 1)
	for _, staged := range store.staged {
		assert.Equal(t, models.StagingFailed, staged.Status)
		require.NotNil(t, staged.FailureReason)
		assert.Equal(t, "Ratings out of range", *staged.FailureReason)
	}
	assert.Empty(t, store.submissions)
}

func TestSubmitFeedbackDuplicateRevertMapsToConflict(t *testing.T) {
	ledger, store, users, _ := feedbackFixture()
	ledger.submitErr = &chain.RevertError{Method: "submitFeedback", Reason: "Feedback already submitted"}
	svc := NewFeedbackService(ledger, &mockResolver{sender: adminAddr}, store, users, nil, false, time.Hour, nil, nil)

	_, err := svc.Submit(context.Background(), "usr-1", validSubmission())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSubmitFeedbackTimeoutKeepsStagedPending(t *testing.T) {
	ledger, store, users, _ := feedbackFixture()
	ledger.submitErr = &chain.TimeoutError{Method: "submitFeedback", TxHash: "0xpending"}
	svc := NewFeedbackService(ledger, &mockResolver{sender: adminAddr}, store, users, nil, false, time.Hour, nil, nil)

	_, err := svc.Submit(context.Background(), "usr-1", validSubmission())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrChainTimeout.Code, appErrors.FromError(err).Code)

	require.Len(t, store.staged, 1)
	for _, staged := range store.staged {
		assert.Equal(t, models.StagingPending, staged.Status)
		require.NotNil(t, staged.TxHash)
		assert.Equal(t, "0xpending", *staged.TxHash)
	}
	assert.Empty(t, store.submissions)
}

func TestStatusEnforcesOwnership(t *testing.T) {
	ledger, store, users, _ := feedbackFixture()
	svc := NewFeedbackService(ledger, &mockResolver{sender: adminAddr}, store, users, nil, false, time.Hour, nil, nil)

	receipt, err := svc.Submit(context.Background(), "usr-1", validSubmission())
	require.NoError(t, err)

	staged, err := svc.Status(context.Background(), "usr-1", receipt.StagingID)
	require.NoError(t, err)
	assert.Equal(t, models.StagingConfirmed, staged.Status)

	otherWallet := adminAddr.Hex()
	users.users["usr-2"] = &models.User{ID: "usr-2", Role: models.RoleStudent, WalletAddress: &otherWallet}
	_, err = svc.Status(context.Background(), "usr-2", receipt.StagingID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	// Admins may inspect any staged record.
	users.users["adm-1"] = &models.User{ID: "adm-1", Role: models.RoleAdmin}
	_, err = svc.Status(context.Background(), "adm-1", receipt.StagingID)
	require.NoError(t, err)
}

func TestPurgeExpiredStaging(t *testing.T) {
	ledger, store, users, _ := feedbackFixture()
	store.purged = 4
	svc := NewFeedbackService(ledger, &mockResolver{sender: adminAddr}, store, users, nil, false, time.Hour, nil, nil)

	purged, err := svc.PurgeExpiredStaging(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), purged)
}
