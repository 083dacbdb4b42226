package archive

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"hize/membership/internal/model"
)

// ValidationRecord 校验终态归档（每个 job 一行）
type ValidationRecord struct {
	JobID            string `gorm:"column:job_id;primaryKey;type:varchar(64)"`
	MemberID         string `gorm:"column:member_id;type:varchar(64);not null;index:idx_member_created"`
	Status           string `gorm:"column:status;type:varchar(16);not null"`
	IsValid          bool   `gorm:"column:is_valid;not null;default:false"`
	MembershipStatus string `gorm:"column:membership_status;type:varchar(128)"`
	ErrorMessage     string `gorm:"column:error_message;type:varchar(512)"`
	SessionExpired   bool   `gorm:"column:session_expired;not null;default:false"`
	Worker           string `gorm:"column:worker;type:varchar(64)"`

	Result datatypes.JSON `gorm:"column:result;type:json"`

	CreatedAt   time.Time  `gorm:"column:created_at;not null;index:idx_member_created"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
}

// TableName 指定表名
func (ValidationRecord) TableName() string {
	return "validation_records"
}

// NewRecord 由终态 job 和可选结果生成归档行
func NewRecord(job *model.ValidationJob, result *model.ValidationResult) (*ValidationRecord, error) {
	if !job.Status.IsTerminal() {
		return nil, fmt.Errorf("job %s is not terminal: %s", job.JobID, job.Status)
	}

	rec := &ValidationRecord{
		JobID:          job.JobID,
		MemberID:       job.MemberID,
		Status:         string(job.Status),
		ErrorMessage:   job.Error,
		SessionExpired: job.SessionExpired,
		Worker:         job.Worker,
		CreatedAt:      job.CreatedAt,
		CompletedAt:    job.CompletedAt,
	}

	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("marshal result failed: %w", err)
		}
		rec.Result = datatypes.JSON(data)
		rec.IsValid = result.IsValid
		rec.MembershipStatus = result.MembershipStatus
	}
	return rec, nil
}
