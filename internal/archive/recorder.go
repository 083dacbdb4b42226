package archive

import (
	"context"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"hize/membership/internal/model"
)

// Recorder 终态归档
type Recorder interface {
	Record(ctx context.Context, job *model.ValidationJob, result *model.ValidationResult) error
	Close() error
}

// GormRecorder MySQL 归档实现
type GormRecorder struct {
	db *gorm.DB
}

// NewGormRecorder 连接 MySQL 并建表
func NewGormRecorder(dsn string) (*GormRecorder, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewGormRecorderWithDB(db)
}

// NewGormRecorderWithDB 复用已有连接并建表
func NewGormRecorderWithDB(db *gorm.DB) (*GormRecorder, error) {
	if err := db.AutoMigrate(&ValidationRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate validation_records: %w", err)
	}
	return &GormRecorder{db: db}, nil
}

// Record 写入归档，同一 job 重复投递时覆盖
func (r *GormRecorder) Record(ctx context.Context, job *model.ValidationJob, result *model.ValidationResult) error {
	rec, err := NewRecord(job, result)
	if err != nil {
		return err
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(rec).Error
	if err != nil {
		return fmt.Errorf("failed to archive job %s: %w", job.JobID, err)
	}
	return nil
}

// Close 关闭数据库连接
func (r *GormRecorder) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NopRecorder 未开启归档时使用
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *model.ValidationJob, *model.ValidationResult) error {
	return nil
}

func (NopRecorder) Close() error {
	return nil
}
