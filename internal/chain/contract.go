package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TeacherRecord is a decoded teacher entry from the contract registry.
type TeacherRecord struct {
	TeacherID  string
	Name       string
	Registered bool
}

// StudentRecord is a decoded student entry from the contract registry.
type StudentRecord struct {
	Wallet     common.Address
	Name       string
	Registered bool
}

// CourseRecord is a decoded course entry from the contract registry.
type CourseRecord struct {
	ID     int64
	Name   string
	Exists bool
}

// FeedbackEntry is a decoded on-chain feedback submission.
type FeedbackEntry struct {
	ID            int64
	StudentWallet common.Address
	TeacherID     string
	CourseID      int64
	Ratings       [4]uint8
	TotalScore    int64
	Comments      string
	Timestamp     time.Time
}

// teacherProbeCap bounds the per-course teacher list walk. The contract
// stores at most a handful of teachers per course; the cap only guards
// against a provider that never reverts on out-of-range reads.
const teacherProbeCap = 64

type teacherOutput struct {
	TeacherId    string `abi:"teacherId"`
	Name         string `abi:"name"`
	IsRegistered bool   `abi:"isRegistered"`
}

type studentOutput struct {
	Wallet       common.Address `abi:"wallet"`
	Name         string         `abi:"name"`
	IsRegistered bool           `abi:"isRegistered"`
}

type courseOutput struct {
	CourseId   *big.Int `abi:"courseId"`
	CourseName string   `abi:"courseName"`
	Exists     bool     `abi:"exists"`
}

// feedbackTuple mirrors the contract's Feedback struct. Field order must
// match the ABI component order exactly.
type feedbackTuple struct {
	StudentWallet common.Address
	FacultyId     string
	CourseId      *big.Int
	Ratings       [4]uint8
	TotalScore    *big.Int
	Id            *big.Int
	Comments      string
	Timestamp     *big.Int
}

// TeacherByID reads the teacher registry entry for id. A record with
// Registered false means the id is unknown to the contract.
func (c *Client) TeacherByID(ctx context.Context, id string) (*TeacherRecord, error) {
	var out teacherOutput
	if err := c.Call(ctx, &out, "teachers", id); err != nil {
		return nil, err
	}
	return &TeacherRecord{TeacherID: out.TeacherId, Name: out.Name, Registered: out.IsRegistered}, nil
}

// StudentByWallet reads the student registry entry for wallet.
func (c *Client) StudentByWallet(ctx context.Context, wallet common.Address) (*StudentRecord, error) {
	var out studentOutput
	if err := c.Call(ctx, &out, "students", wallet); err != nil {
		return nil, err
	}
	return &StudentRecord{Wallet: out.Wallet, Name: out.Name, Registered: out.IsRegistered}, nil
}

// CourseByID reads the course registry entry for id.
func (c *Client) CourseByID(ctx context.Context, id int64) (*CourseRecord, error) {
	var out courseOutput
	if err := c.Call(ctx, &out, "courses", big.NewInt(id)); err != nil {
		return nil, err
	}
	record := &CourseRecord{Name: out.CourseName, Exists: out.Exists}
	if out.CourseId != nil {
		record.ID = out.CourseId.Int64()
	}
	return record, nil
}

// CourseIDs enumerates every registered course id.
func (c *Client) CourseIDs(ctx context.Context) ([]int64, error) {
	var raw []*big.Int
	if err := c.Call(ctx, &raw, "getAllCourseIds"); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(raw))
	for _, id := range raw {
		if id != nil {
			ids = append(ids, id.Int64())
		}
	}
	return ids, nil
}

// CourseTeachers walks the per-course teacher array. The contract exposes no
// length accessor, so the walk probes successive indexes until the contract
// rejects the read.
func (c *Client) CourseTeachers(ctx context.Context, courseID int64) ([]string, error) {
	var teachers []string
	for i := int64(0); i < teacherProbeCap; i++ {
		var teacherID string
		err := c.Call(ctx, &teacherID, "courseTeacherList", big.NewInt(courseID), big.NewInt(i))
		if err != nil {
			if _, ok := IsRevert(err); ok {
				return teachers, nil
			}
			return nil, err
		}
		if teacherID == "" {
			return teachers, nil
		}
		teachers = append(teachers, teacherID)
	}
	return teachers, nil
}

// AllFeedback reads the full on-chain feedback log.
func (c *Client) AllFeedback(ctx context.Context) ([]FeedbackEntry, error) {
	var raw []feedbackTuple
	if err := c.Call(ctx, &raw, "getAllFeedbacks"); err != nil {
		return nil, err
	}
	entries := make([]FeedbackEntry, 0, len(raw))
	for _, fb := range raw {
		entry := FeedbackEntry{
			StudentWallet: fb.StudentWallet,
			TeacherID:     fb.FacultyId,
			Ratings:       fb.Ratings,
			Comments:      fb.Comments,
		}
		if fb.Id != nil {
			entry.ID = fb.Id.Int64()
		}
		if fb.CourseId != nil {
			entry.CourseID = fb.CourseId.Int64()
		}
		if fb.TotalScore != nil {
			entry.TotalScore = fb.TotalScore.Int64()
		}
		if fb.Timestamp != nil {
			entry.Timestamp = time.Unix(fb.Timestamp.Int64(), 0).UTC()
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// AdminAddress reads the current contract admin.
func (c *Client) AdminAddress(ctx context.Context) (common.Address, error) {
	var admin common.Address
	if err := c.Call(ctx, &admin, "admin"); err != nil {
		return common.Address{}, err
	}
	return admin, nil
}

// AddTeacher registers a teacher on the ledger.
func (c *Client) AddTeacher(ctx context.Context, from common.Address, teacherID, name string) (*SendResult, error) {
	return c.Send(ctx, from, "addTeacher", c.gas.Register, teacherID, name)
}

// AddStudent registers a student wallet on the ledger.
func (c *Client) AddStudent(ctx context.Context, from, wallet common.Address, name string) (*SendResult, error) {
	return c.Send(ctx, from, "addStudent", c.gas.Register, wallet, name)
}

// AddCourse registers a course on the ledger.
func (c *Client) AddCourse(ctx context.Context, from common.Address, courseID int64, name string) (*SendResult, error) {
	return c.Send(ctx, from, "addCourse", c.gas.Register, big.NewInt(courseID), name)
}

// AssignTeacher links a registered teacher to a course.
func (c *Client) AssignTeacher(ctx context.Context, from common.Address, courseID int64, teacherID string) (*SendResult, error) {
	return c.Send(ctx, from, "assignTeacherToCourse", c.gas.Assign, big.NewInt(courseID), teacherID)
}

// SubmitFeedback writes a feedback entry. from is the transaction sender,
// which may differ from the student wallet only under sponsored submission.
func (c *Client) SubmitFeedback(ctx context.Context, from, student common.Address, teacherID string, courseID int64, ratings [4]uint8, comments string) (*SendResult, error) {
	return c.Send(ctx, from, "submitFeedback", c.gas.Feedback, student, teacherID, big.NewInt(courseID), ratings, comments)
}

// TransferAdmin hands contract adminship to newAdmin. Must be sent by the
// current admin.
func (c *Client) TransferAdmin(ctx context.Context, from, newAdmin common.Address) (*SendResult, error) {
	return c.Send(ctx, from, "transferAdmin", c.gas.Assign, newAdmin)
}

// CanSign reports whether the adapter can produce a transaction from addr.
func (c *Client) CanSign(addr common.Address) bool {
	return c.wallet.CanSign(addr)
}

// ParseAddress validates and normalizes a hex address.
func ParseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("chain: invalid address %q", raw)
	}
	return common.HexToAddress(raw), nil
}
