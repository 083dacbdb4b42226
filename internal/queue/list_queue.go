package queue

import (
	"context"
	"fmt"
	"time"

	"hize/membership/internal/framework"
	"hize/membership/internal/model"
	"hize/membership/internal/store"
)

// ListQueue 基于共享存储列表的 FIFO 队列（RPUSH / BLPOP）
type ListQueue struct {
	st   store.Store
	name string
}

var _ Queue = (*ListQueue)(nil)

// NewListQueue 创建 list 队列
func NewListQueue(st store.Store, name string) *ListQueue {
	return &ListQueue{st: st, name: name}
}

func (q *ListQueue) Name() string {
	return q.name
}

// Push 追加到队尾
func (q *ListQueue) Push(ctx context.Context, job *model.ValidationJob) error {
	raw, err := model.EncodeJob(job)
	if err != nil {
		return err
	}
	if err := q.st.Push(ctx, q.name, raw); err != nil {
		return fmt.Errorf("push job %s: %w", job.JobID, err)
	}
	return nil
}

func (q *ListQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.st.Len(ctx, q.name)
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return n, nil
}

// Consume 从队头阻塞弹出，ttr 对 list 队列无意义
func (q *ListQueue) Consume(ctx context.Context, queue string, timeout time.Duration, _ time.Duration) (*framework.Message, error) {
	raw, found, err := q.st.Pop(ctx, queue, timeout)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &framework.Message{
		ID:    jobIDOf([]byte(raw)),
		Queue: queue,
		Data:  []byte(raw),
	}, nil
}

// Ack 弹出即已删除
func (q *ListQueue) Ack(context.Context, *framework.Message) error {
	return nil
}

// Release 重新追加到队尾
func (q *ListQueue) Release(ctx context.Context, msg *framework.Message) error {
	if err := q.st.Push(ctx, msg.Queue, string(msg.Data)); err != nil {
		return fmt.Errorf("release message %s: %w", msg.ID, err)
	}
	return nil
}
