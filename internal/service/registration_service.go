package service

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campuschain/feedback-api/internal/chain"
	"github.com/campuschain/feedback-api/internal/models"
	appErrors "github.com/campuschain/feedback-api/pkg/errors"
)

type ledgerRegistry interface {
	TeacherByID(ctx context.Context, id string) (*chain.TeacherRecord, error)
	StudentByWallet(ctx context.Context, wallet common.Address) (*chain.StudentRecord, error)
	CourseByID(ctx context.Context, id int64) (*chain.CourseRecord, error)
	AddTeacher(ctx context.Context, from common.Address, teacherID, name string) (*chain.SendResult, error)
	AddStudent(ctx context.Context, from, wallet common.Address, name string) (*chain.SendResult, error)
	AddCourse(ctx context.Context, from common.Address, courseID int64, name string) (*chain.SendResult, error)
	AssignTeacher(ctx context.Context, from common.Address, courseID int64, teacherID string) (*chain.SendResult, error)
}

type adminSender interface {
	AdminSender(ctx context.Context) (common.Address, error)
}

type courseWriter interface {
	Upsert(ctx context.Context, course *models.Course) error
}

type walletBinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	BindWallet(ctx context.Context, userID, wallet string) error
	ClearWallet(ctx context.Context, userID string) error
	WalletLinked(ctx context.Context, wallet, excludeUserID string) (bool, error)
}

type cacheInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

// RegisterTeacherRequest describes a teacher registration payload.
type RegisterTeacherRequest struct {
	TeacherID string `json:"teacher_id" validate:"required,max=64"`
	Name      string `json:"name" validate:"required,max=128"`
}

// RegisterStudentRequest describes an admin-driven student registration.
type RegisterStudentRequest struct {
	WalletAddress string `json:"wallet_address" validate:"required"`
	Name          string `json:"name" validate:"required,max=128"`
}

// CourseTeacherRequest identifies a teacher to register and assign during
// course creation. The display name goes on the ledger, so it is required.
type CourseTeacherRequest struct {
	TeacherID   string `json:"teacher_id" validate:"required,max=64"`
	TeacherName string `json:"teacher_name" validate:"required,max=128"`
}

// CreateCourseRequest describes course creation with optional teacher set.
type CreateCourseRequest struct {
	CourseID   int64                  `json:"course_id" validate:"required,gt=0"`
	CourseName string                 `json:"course_name" validate:"required,max=128"`
	Branch     *string                `json:"branch,omitempty"`
	CourseTime *string                `json:"course_time,omitempty"`
	Teachers   []CourseTeacherRequest `json:"teachers" validate:"dive"`
}

// Registration reports an idempotent register-or-confirm outcome. A reused
// registration carries no transaction hash.
type Registration struct {
	AlreadyRegistered bool   `json:"already_registered"`
	TxHash            string `json:"tx_hash,omitempty"`
	BlockNumber       uint64 `json:"block_number,omitempty"`
}

// RegistrationService orchestrates idempotent ledger registrations: teachers,
// students, courses and teacher-course assignment. Every write checks current
// on-chain state first so that re-running a registration converges instead of
// reverting.
type RegistrationService struct {
	ledger    ledgerRegistry
	resolver  adminSender
	courses   courseWriter
	users     walletBinder
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRegistrationService constructs RegistrationService.
func NewRegistrationService(ledger ledgerRegistry, resolver adminSender, courses courseWriter, users walletBinder, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger) *RegistrationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{
		ledger:    ledger,
		resolver:  resolver,
		courses:   courses,
		users:     users,
		cache:     cache,
		validator: validate,
		logger:    logger,
	}
}

// RegisterTeacher registers a teacher on the ledger if not already present.
func (s *RegistrationService) RegisterTeacher(ctx context.Context, req RegisterTeacherRequest) (*Registration, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	record, err := s.ledger.TeacherByID(ctx, req.TeacherID)
	if err != nil {
		return nil, chainError(err, "failed to read teacher registry")
	}
	if record.Registered {
		return &Registration{AlreadyRegistered: true}, nil
	}

	sender, err := s.resolver.AdminSender(ctx)
	if err != nil {
		return nil, chainError(err, "failed to resolve admin sender")
	}

	result, err := s.ledger.AddTeacher(ctx, sender, req.TeacherID, req.Name)
	if err != nil {
		if chain.IsAlreadyRegistered(err) {
			// Lost a registration race; the desired state holds.
			return &Registration{AlreadyRegistered: true}, nil
		}
		return nil, chainError(err, "failed to register teacher")
	}

	s.logger.Info("teacher registered",
		zap.String("teacher_id", req.TeacherID),
		zap.String("tx_hash", result.TxHash),
	)
	return &Registration{TxHash: result.TxHash, BlockNumber: result.BlockNumber}, nil
}

// RegisterStudent registers a student wallet on the ledger if not already
// present.
func (s *RegistrationService) RegisterStudent(ctx context.Context, req RegisterStudentRequest) (*Registration, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	wallet, err := chain.ParseAddress(req.WalletAddress)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid wallet address")
	}

	return s.registerStudentWallet(ctx, wallet, req.Name)
}

func (s *RegistrationService) registerStudentWallet(ctx context.Context, wallet common.Address, name string) (*Registration, error) {
	record, err := s.ledger.StudentByWallet(ctx, wallet)
	if err != nil {
		return nil, chainError(err, "failed to read student registry")
	}
	if record.Registered {
		return &Registration{AlreadyRegistered: true}, nil
	}

	sender, err := s.resolver.AdminSender(ctx)
	if err != nil {
		return nil, chainError(err, "failed to resolve admin sender")
	}

	result, err := s.ledger.AddStudent(ctx, sender, wallet, name)
	if err != nil {
		if chain.IsAlreadyRegistered(err) {
			return &Registration{AlreadyRegistered: true}, nil
		}
		return nil, chainError(err, "failed to register student")
	}

	s.logger.Info("student registered",
		zap.String("wallet", wallet.Hex()),
		zap.String("tx_hash", result.TxHash),
	)
	return &Registration{TxHash: result.TxHash, BlockNumber: result.BlockNumber}, nil
}

// LinkWallet binds a wallet address to a user and registers the wallet as a
// student on the ledger. The off-chain binding is rolled back if the ledger
// registration fails, so a user never holds a wallet the chain rejects.
func (s *RegistrationService) LinkWallet(ctx context.Context, userID, walletAddress string) (*Registration, error) {
	wallet, err := chain.ParseAddress(walletAddress)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid wallet address")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	if user.WalletAddress != nil && !strings.EqualFold(*user.WalletAddress, wallet.Hex()) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "user already linked to a different wallet")
	}

	linked, err := s.users.WalletLinked(ctx, wallet.Hex(), userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check wallet link")
	}
	if linked {
		return nil, appErrors.Clone(appErrors.ErrConflict, "wallet already linked to another user")
	}

	if err := s.users.BindWallet(ctx, userID, wallet.Hex()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to bind wallet")
	}

	registration, err := s.registerStudentWallet(ctx, wallet, user.FullName)
	if err != nil {
		if rollbackErr := s.users.ClearWallet(ctx, userID); rollbackErr != nil {
			s.logger.Error("wallet binding rollback failed",
				zap.String("user_id", userID),
				zap.String("wallet", wallet.Hex()),
				zap.Error(rollbackErr),
			)
		}
		return nil, err
	}

	return registration, nil
}

// CreateCourse registers a course on the ledger, then registers and assigns
// each requested teacher. A course ID already on the ledger is a conflict,
// not a reuse: courses are immutable once written, so a clashing ID is more
// likely a typo than a retry. Per-teacher failures are tolerated and reported
// as warnings; the course itself must succeed.
func (s *RegistrationService) CreateCourse(ctx context.Context, req CreateCourseRequest) (*models.CourseCreation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	sender, err := s.resolver.AdminSender(ctx)
	if err != nil {
		return nil, chainError(err, "failed to resolve admin sender")
	}

	record, err := s.ledger.CourseByID(ctx, req.CourseID)
	if err != nil {
		return nil, chainError(err, "failed to read course registry")
	}
	if record.Exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course id already exists on ledger")
	}

	result, err := s.ledger.AddCourse(ctx, sender, req.CourseID, req.CourseName)
	if err != nil {
		if chain.IsAlreadyRegistered(err) {
			// Created concurrently between the existence check and the send.
			return nil, appErrors.Clone(appErrors.ErrConflict, "course id already exists on ledger")
		}
		return nil, chainError(err, "failed to create course")
	}
	txHash := result.TxHash
	blockNumber := result.BlockNumber

	warnings := s.enrollTeachers(ctx, sender, req.CourseID, req.Teachers)

	course := &models.Course{
		CourseID:    req.CourseID,
		CourseName:  req.CourseName,
		Branch:      req.Branch,
		CourseTime:  req.CourseTime,
		TxHash:      txHash,
		BlockNumber: blockNumber,
	}
	if err := s.courses.Upsert(ctx, course); err != nil {
		// The ledger write already succeeded; surface the mirror failure
		// without undoing the course.
		s.logger.Error("course mirror write failed", zap.Int64("course_id", req.CourseID), zap.Error(err))
	}

	if s.cache != nil {
		if err := s.cache.DeleteByPattern(ctx, "chain:*"); err != nil {
			s.logger.Warn("cache invalidation failed", zap.Error(err))
		}
	}

	view := models.CourseView{
		CourseID:   req.CourseID,
		CourseName: req.CourseName,
		Branch:     req.Branch,
		CourseTime: req.CourseTime,
	}
	for _, teacher := range req.Teachers {
		if !warningFor(warnings, teacher.TeacherID) {
			view.Teachers = append(view.Teachers, models.CourseTeacher{TeacherID: teacher.TeacherID, TeacherName: teacher.TeacherName})
		}
	}

	return &models.CourseCreation{Course: view, TxHash: txHash, Warnings: warnings}, nil
}

func (s *RegistrationService) enrollTeachers(ctx context.Context, sender common.Address, courseID int64, teachers []CourseTeacherRequest) []models.TeacherWarning {
	var warnings []models.TeacherWarning
	for _, teacher := range teachers {
		record, err := s.ledger.TeacherByID(ctx, teacher.TeacherID)
		if err != nil {
			warnings = append(warnings, models.TeacherWarning{TeacherID: teacher.TeacherID, Stage: "register", Reason: err.Error()})
			continue
		}
		if !record.Registered {
			if _, err := s.ledger.AddTeacher(ctx, sender, teacher.TeacherID, teacher.TeacherName); err != nil && !chain.IsAlreadyRegistered(err) {
				warnings = append(warnings, models.TeacherWarning{TeacherID: teacher.TeacherID, Stage: "register", Reason: warningReason(err)})
				continue
			}
		}

		if _, err := s.ledger.AssignTeacher(ctx, sender, courseID, teacher.TeacherID); err != nil {
			if chain.IsAlreadyRegistered(err) {
				// Already assigned; desired state holds.
				continue
			}
			warnings = append(warnings, models.TeacherWarning{TeacherID: teacher.TeacherID, Stage: "assign", Reason: warningReason(err)})
		}
	}
	return warnings
}

func warningFor(warnings []models.TeacherWarning, teacherID string) bool {
	for _, w := range warnings {
		if w.TeacherID == teacherID {
			return true
		}
	}
	return false
}

func warningReason(err error) string {
	if revert, ok := chain.IsRevert(err); ok && revert.Reason != "" {
		return revert.Reason
	}
	return err.Error()
}

// chainError maps adapter error types onto the API error envelope.
func chainError(err error, fallback string) *appErrors.Error {
	if revert, ok := chain.IsRevert(err); ok {
		message := appErrors.ErrChainRevert.Message
		if revert.Reason != "" {
			message = revert.Reason
		}
		return appErrors.Wrap(err, appErrors.ErrChainRevert.Code, appErrors.ErrChainRevert.Status, message)
	}
	if chain.IsTimeout(err) {
		return appErrors.Wrap(err, appErrors.ErrChainTimeout.Code, appErrors.ErrChainTimeout.Status, appErrors.ErrChainTimeout.Message)
	}
	var unavailable *chain.SenderUnavailableError
	if errors.As(err, &unavailable) {
		return appErrors.Wrap(err, appErrors.ErrSenderUnavailable.Code, appErrors.ErrSenderUnavailable.Status, unavailable.Error())
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fallback)
}
