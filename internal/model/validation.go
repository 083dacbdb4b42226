package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// JobStatus job 状态
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// IsTerminal completed / failed 之后不再变化
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s JobStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return -1
	}
}

// CanAdvanceTo 状态只能沿 pending → processing → {completed | failed} 前进
func (s JobStatus) CanAdvanceTo(next JobStatus) bool {
	if s.IsTerminal() {
		return false
	}
	return next.rank() >= s.rank() && next.rank() >= 0
}

// ErrMalformed 存储中的记录无法解析或不满足约束
var ErrMalformed = errors.New("malformed record")

// ValidationJob 会员校验任务
type ValidationJob struct {
	JobID          string     `json:"jobId" validate:"required,uuid"`
	MemberID       string     `json:"memberId" validate:"required"`
	Status         JobStatus  `json:"status" validate:"required,oneof=pending processing completed failed"`
	CreatedAt      time.Time  `json:"createdAt" validate:"required"`
	Error          string     `json:"error,omitempty"`
	Worker         string     `json:"worker,omitempty"`
	SessionExpired bool       `json:"sessionExpired,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

// ValidationResult 缓存的校验结果，对外返回
type ValidationResult struct {
	MemberID                   string     `json:"memberId" validate:"required"`
	IsValid                    bool       `json:"isValid"`
	MembershipStatus           string     `json:"membershipStatus" validate:"required"`
	NameInitials               string     `json:"nameInitials,omitempty"`
	MemberGrade                string     `json:"memberGrade,omitempty"`
	StandardsAssociationMember string     `json:"standardsAssociationMember,omitempty"`
	SocietyMemberships         string     `json:"societyMemberships,omitempty"`
	JobID                      string     `json:"jobId" validate:"required"`
	CompletedAt                *time.Time `json:"completedAt,omitempty"`
}

var validate = validator.New()

// NormalizeMemberID 去掉首尾空白
func NormalizeMemberID(memberID string) string {
	return strings.TrimSpace(memberID)
}

// NewJobID 生成 128 位随机 job ID
func NewJobID() string {
	return uuid.New().String()
}

// NewValidationJob 创建 pending 状态的任务
func NewValidationJob(memberID string, now time.Time) *ValidationJob {
	return &ValidationJob{
		JobID:     NewJobID(),
		MemberID:  memberID,
		Status:    StatusPending,
		CreatedAt: now.UTC(),
	}
}

// ExpiresAt 任务记录的固定过期时间
func (j *ValidationJob) ExpiresAt(ttl time.Duration) time.Time {
	return j.CreatedAt.Add(ttl)
}

// Clone 浅拷贝
func (j *ValidationJob) Clone() *ValidationJob {
	c := *j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Validate 结构校验
func (j *ValidationJob) Validate() error {
	if err := validate.Struct(j); err != nil {
		return fmt.Errorf("%w: job: %v", ErrMalformed, err)
	}
	if j.Status == StatusFailed && j.Error == "" {
		return fmt.Errorf("%w: job: failed without error", ErrMalformed)
	}
	return nil
}

// Validate 结构校验
func (r *ValidationResult) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: result: %v", ErrMalformed, err)
	}
	return nil
}

// EncodeJob 序列化前先校验，坏数据不落库
func EncodeJob(j *ValidationJob) (string, error) {
	if err := j.Validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("marshal job failed: %w", err)
	}
	return string(data), nil
}

// DecodeJob 反序列化并校验
func DecodeJob(raw string) (*ValidationJob, error) {
	var j ValidationJob
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return nil, fmt.Errorf("%w: job: %v", ErrMalformed, err)
	}
	if err := j.Validate(); err != nil {
		return nil, err
	}
	return &j, nil
}

// EncodeResult 序列化前先校验
func EncodeResult(r *ValidationResult) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal result failed: %w", err)
	}
	return string(data), nil
}

// DecodeResult 反序列化并校验
func DecodeResult(raw string) (*ValidationResult, error) {
	var r ValidationResult
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("%w: result: %v", ErrMalformed, err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}
