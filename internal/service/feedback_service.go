package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuschain/feedback-api/internal/chain"
	"github.com/campuschain/feedback-api/internal/models"
	appErrors "github.com/campuschain/feedback-api/pkg/errors"
)

type ledgerSubmitter interface {
	StudentByWallet(ctx context.Context, wallet common.Address) (*chain.StudentRecord, error)
	CourseByID(ctx context.Context, id int64) (*chain.CourseRecord, error)
	TeacherByID(ctx context.Context, id string) (*chain.TeacherRecord, error)
	SubmitFeedback(ctx context.Context, from, student common.Address, teacherID string, courseID int64, ratings [4]uint8, comments string) (*chain.SendResult, error)
	CanSign(addr common.Address) bool
}

type feedbackStore interface {
	CreateStaged(ctx context.Context, staged *models.StagedFeedback) error
	UpdateStagedStatus(ctx context.Context, id string, status models.StagingStatus, txHash, failureReason *string) error
	FindStaged(ctx context.Context, id string) (*models.StagedFeedback, error)
	ListStagedByWallet(ctx context.Context, wallet string) ([]models.StagedFeedback, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
	CreateSubmission(ctx context.Context, submission *models.FeedbackSubmission) error
	HasSubmission(ctx context.Context, wallet string, courseID int64, teacherID string) (bool, error)
	ListSubmissionsByUser(ctx context.Context, userID string) ([]models.FeedbackSubmission, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// SubmitFeedbackRequest describes a feedback submission payload. Ratings are
// in the fixed dimension order teaching, communication, fairness, engagement.
type SubmitFeedbackRequest struct {
	CourseID  int64   `json:"course_id" validate:"required,gt=0"`
	TeacherID string  `json:"teacher_id" validate:"required,max=64"`
	Ratings   []uint8 `json:"ratings" validate:"required,len=4,dive,min=1,max=5"`
	Comments  string  `json:"comments" validate:"max=1024"`
}

// SubmissionReceipt reports an accepted, ledger-confirmed submission.
type SubmissionReceipt struct {
	StagingID   string `json:"staging_id"`
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	Sponsored   bool   `json:"sponsored,omitempty"`
}

// FeedbackService coordinates feedback submissions: validation, duplicate
// gating, staging, the ledger write and the confirmed-submission index.
// Feedback is signed by the student's own wallet; an admin-sponsored send is
// permitted only when sponsorship is explicitly enabled.
type FeedbackService struct {
	ledger     ledgerSubmitter
	resolver   adminSender
	store      feedbackStore
	users      userReader
	cache      cacheInvalidator
	sponsor    bool
	stagingTTL time.Duration
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewFeedbackService constructs FeedbackService.
func NewFeedbackService(ledger ledgerSubmitter, resolver adminSender, store feedbackStore, users userReader, cache cacheInvalidator, sponsor bool, stagingTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *FeedbackService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if stagingTTL <= 0 {
		stagingTTL = 24 * time.Hour
	}
	return &FeedbackService{
		ledger:     ledger,
		resolver:   resolver,
		store:      store,
		users:      users,
		cache:      cache,
		sponsor:    sponsor,
		stagingTTL: stagingTTL,
		validator:  validate,
		logger:     logger,
	}
}

// Submit validates, stages and writes a feedback entry to the ledger. The
// confirmed-submission index is only written after the receipt reports
// success; a revert marks the staged record failed and a timeout leaves it
// pending for later inspection.
func (s *FeedbackService) Submit(ctx context.Context, userID string, req SubmitFeedbackRequest) (*SubmissionReceipt, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid feedback payload")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	if user.WalletAddress == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no wallet linked to account")
	}
	wallet, err := chain.ParseAddress(*user.WalletAddress)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "linked wallet address is invalid")
	}

	duplicate, err := s.store.HasSubmission(ctx, wallet.Hex(), req.CourseID, req.TeacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check prior submissions")
	}
	if duplicate {
		return nil, appErrors.Clone(appErrors.ErrConflict, "feedback already submitted for this course and teacher")
	}

	if err := s.checkLedgerPreconditions(ctx, wallet, req); err != nil {
		return nil, err
	}

	sender := wallet
	sponsored := false
	if !s.ledger.CanSign(wallet) {
		if !s.sponsor {
			return nil, appErrors.Wrap(
				&chain.SenderUnavailableError{Address: wallet.Hex(), Label: "student"},
				appErrors.ErrSenderUnavailable.Code, appErrors.ErrSenderUnavailable.Status,
				"student wallet cannot sign and sponsorship is disabled",
			)
		}
		sender, err = s.resolver.AdminSender(ctx)
		if err != nil {
			return nil, chainError(err, "failed to resolve sponsoring sender")
		}
		sponsored = true
	}

	ratings := RatingsFromSlice(req.Ratings)

	staged := &models.StagedFeedback{
		WalletAddress: wallet.Hex(),
		CourseID:      req.CourseID,
		TeacherID:     req.TeacherID,
		Ratings:       ratings,
		Comments:      req.Comments,
		Status:        models.StagingPending,
		ExpiresAt:     time.Now().UTC().Add(s.stagingTTL),
	}
	if err := s.store.CreateStaged(ctx, staged); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stage feedback")
	}

	result, err := s.ledger.SubmitFeedback(ctx, sender, wallet, req.TeacherID, req.CourseID, [4]uint8(ratings), req.Comments)
	if err != nil {
		return nil, s.recordFailure(ctx, staged.ID, err)
	}

	txHash := result.TxHash
	if err := s.store.UpdateStagedStatus(ctx, staged.ID, models.StagingConfirmed, &txHash, nil); err != nil {
		s.logger.Error("staged feedback confirm update failed", zap.String("staging_id", staged.ID), zap.Error(err))
	}

	courseName := ""
	if course, err := s.ledger.CourseByID(ctx, req.CourseID); err == nil {
		courseName = course.Name
	}
	submission := &models.FeedbackSubmission{
		UserID:        userID,
		WalletAddress: wallet.Hex(),
		CourseID:      req.CourseID,
		CourseName:    courseName,
		TeacherID:     req.TeacherID,
		TxHash:        result.TxHash,
	}
	if err := s.store.CreateSubmission(ctx, submission); err != nil {
		s.logger.Error("submission index write failed", zap.String("tx_hash", result.TxHash), zap.Error(err))
	}

	if s.cache != nil {
		if err := s.cache.DeleteByPattern(ctx, "chain:*"); err != nil {
			s.logger.Warn("cache invalidation failed", zap.Error(err))
		}
	}

	s.logger.Info("feedback confirmed",
		zap.String("staging_id", staged.ID),
		zap.String("wallet", wallet.Hex()),
		zap.Int64("course_id", req.CourseID),
		zap.String("teacher_id", req.TeacherID),
		zap.String("tx_hash", result.TxHash),
		zap.Bool("sponsored", sponsored),
	)

	return &SubmissionReceipt{
		StagingID:   staged.ID,
		TxHash:      result.TxHash,
		BlockNumber: result.BlockNumber,
		Sponsored:   sponsored,
	}, nil
}

// RatingsFromSlice converts a validated 4-element slice into the fixed set.
func RatingsFromSlice(raw []uint8) models.RatingSet {
	var ratings models.RatingSet
	copy(ratings[:], raw)
	return ratings
}

func (s *FeedbackService) checkLedgerPreconditions(ctx context.Context, wallet common.Address, req SubmitFeedbackRequest) error {
	student, err := s.ledger.StudentByWallet(ctx, wallet)
	if err != nil {
		return chainError(err, "failed to read student registry")
	}
	if !student.Registered {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "wallet is not registered as a student")
	}

	course, err := s.ledger.CourseByID(ctx, req.CourseID)
	if err != nil {
		return chainError(err, "failed to read course registry")
	}
	if !course.Exists {
		return appErrors.Clone(appErrors.ErrNotFound, "course not found on ledger")
	}

	teacher, err := s.ledger.TeacherByID(ctx, req.TeacherID)
	if err != nil {
		return chainError(err, "failed to read teacher registry")
	}
	if !teacher.Registered {
		return appErrors.Clone(appErrors.ErrNotFound, "teacher not found on ledger")
	}

	return nil
}

// recordFailure updates the staged record to reflect a send failure and maps
// the error for the API. A timeout keeps the record pending because the
// transaction may still mine.
func (s *FeedbackService) recordFailure(ctx context.Context, stagingID string, err error) error {
	if chain.IsTimeout(err) {
		var timeout *chain.TimeoutError
		if errors.As(err, &timeout) && timeout.TxHash != "" {
			hash := timeout.TxHash
			if updateErr := s.store.UpdateStagedStatus(ctx, stagingID, models.StagingPending, &hash, nil); updateErr != nil {
				s.logger.Error("staged feedback timeout update failed", zap.String("staging_id", stagingID), zap.Error(updateErr))
			}
		}
		return chainError(err, "feedback confirmation timed out")
	}

	reason := err.Error()
	if revert, ok := chain.IsRevert(err); ok && revert.Reason != "" {
		reason = revert.Reason
	}
	if updateErr := s.store.UpdateStagedStatus(ctx, stagingID, models.StagingFailed, nil, &reason); updateErr != nil {
		s.logger.Error("staged feedback failure update failed", zap.String("staging_id", stagingID), zap.Error(updateErr))
	}

	if revert, ok := chain.IsRevert(err); ok && strings.Contains(strings.ToLower(revert.Reason), "already submitted") {
		return appErrors.Clone(appErrors.ErrConflict, "feedback already submitted for this course and teacher")
	}
	return chainError(err, "failed to submit feedback")
}

// Status returns a staged submission by id. Students may only read their own
// records; the handler enforces identity, this enforces ownership.
func (s *FeedbackService) Status(ctx context.Context, userID, stagingID string) (*models.StagedFeedback, error) {
	staged, err := s.store.FindStaged(ctx, stagingID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "staged feedback not found")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	if user.Role != models.RoleAdmin {
		if user.WalletAddress == nil || !strings.EqualFold(*user.WalletAddress, staged.WalletAddress) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "staged feedback belongs to another wallet")
		}
	}
	return staged, nil
}

// HasSubmitted reports whether the user's linked wallet already has a
// confirmed submission for the (course, teacher) pair.
func (s *FeedbackService) HasSubmitted(ctx context.Context, userID string, courseID int64, teacherID string) (bool, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return false, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	if user.WalletAddress == nil {
		return false, nil
	}
	wallet, err := chain.ParseAddress(*user.WalletAddress)
	if err != nil {
		return false, appErrors.Clone(appErrors.ErrValidation, "linked wallet address is invalid")
	}
	exists, err := s.store.HasSubmission(ctx, wallet.Hex(), courseID, teacherID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check submission")
	}
	return exists, nil
}

// MySubmissions lists a user's confirmed submissions.
func (s *FeedbackService) MySubmissions(ctx context.Context, userID string) ([]models.FeedbackSubmission, error) {
	submissions, err := s.store.ListSubmissionsByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return submissions, nil
}

// PurgeExpiredStaging removes staged records past their TTL. Run periodically
// by the background job queue.
func (s *FeedbackService) PurgeExpiredStaging(ctx context.Context) (int64, error) {
	purged, err := s.store.PurgeExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		s.logger.Info("expired staged feedback purged", zap.Int64("count", purged))
	}
	return purged, nil
}
