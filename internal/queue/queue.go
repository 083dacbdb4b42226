package queue

import (
	"context"
	"encoding/json"

	"hize/membership/internal/framework"
	"hize/membership/internal/model"
)

// Queue 校验任务队列
// 生产端只由 Coordinator 使用，消费端（MessageSource）只由 Worker 使用
type Queue interface {
	framework.MessageSource

	// Push 入队一个 pending 状态的任务
	Push(ctx context.Context, job *model.ValidationJob) error

	// Len 当前排队数量
	Len(ctx context.Context) (int64, error)

	// Name 队列名称
	Name() string
}

// jobIDOf 从任务 JSON 中取出 jobId，用作 list 队列的消息 ID
func jobIDOf(data []byte) string {
	var probe struct {
		JobID string `json:"jobId"`
	}
	if err := json.Unmarshal(data, &probe); err != nil || probe.JobID == "" {
		return "unknown"
	}
	return probe.JobID
}
