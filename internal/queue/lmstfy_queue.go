package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/bitleak/lmstfy/client"

	"hize/membership/internal/framework"
	"hize/membership/internal/model"
)

// LmstfyOptions lmstfy 连接与投递参数
type LmstfyOptions struct {
	Host      string
	Port      int
	Namespace string
	Token     string
	Name      string
	Tries     uint16        // 最大投递次数，耗尽后进入死信
	JobTTL    time.Duration // 消息存活时间，与 job 记录一致
}

// LmstfyQueue 基于 lmstfy 的任务队列
// 未 Ack 的消息在 TTR 之后自动重新投递
type LmstfyQueue struct {
	cli    *client.LmstfyClient
	name   string
	tries  uint16
	jobTTL uint32
}

var _ Queue = (*LmstfyQueue)(nil)

// NewLmstfyQueue 创建 lmstfy 队列
func NewLmstfyQueue(opts LmstfyOptions) *LmstfyQueue {
	tries := opts.Tries
	if tries == 0 {
		tries = 1
	}
	return &LmstfyQueue{
		cli:    client.NewLmstfyClient(opts.Host, opts.Port, opts.Namespace, opts.Token),
		name:   opts.Name,
		tries:  tries,
		jobTTL: seconds(opts.JobTTL),
	}
}

func (q *LmstfyQueue) Name() string {
	return q.name
}

// Push 发布消息，立即可消费
func (q *LmstfyQueue) Push(ctx context.Context, job *model.ValidationJob) error {
	raw, err := model.EncodeJob(job)
	if err != nil {
		return err
	}
	if _, err := q.cli.Publish(q.name, []byte(raw), q.jobTTL, q.tries, 0); err != nil {
		return fmt.Errorf("lmstfy publish failed: %v", err)
	}
	return nil
}

// Len 当前就绪的消息数
func (q *LmstfyQueue) Len(ctx context.Context) (int64, error) {
	size, err := q.cli.QueueSize(q.name)
	if err != nil {
		return 0, fmt.Errorf("lmstfy queue size failed: %v", err)
	}
	return int64(size), nil
}

// Consume 消费消息（实现 MessageSource 接口）
func (q *LmstfyQueue) Consume(ctx context.Context, queue string, timeout time.Duration, ttr time.Duration) (*framework.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	job, err := q.cli.Consume(queue, seconds(ttr), seconds(timeout))
	if err != nil {
		return nil, fmt.Errorf("lmstfy consume failed: %v", err)
	}

	// 超时未拉到消息
	if job == nil {
		return nil, nil
	}

	return &framework.Message{
		ID:    job.ID,
		Queue: job.Queue,
		Data:  job.Data,
	}, nil
}

// Ack 确认消息（实现 MessageSource 接口）
func (q *LmstfyQueue) Ack(_ context.Context, msg *framework.Message) error {
	if err := q.cli.Ack(msg.Queue, msg.ID); err != nil {
		return fmt.Errorf("lmstfy ack failed: %v", err)
	}
	return nil
}

// Release 不确认，TTR 到期后由 lmstfy 重新投递
func (q *LmstfyQueue) Release(context.Context, *framework.Message) error {
	return nil
}

// seconds lmstfy 以秒为单位，不足 1 秒按 1 秒
func seconds(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	s := uint32(d / time.Second)
	if s == 0 {
		return 1
	}
	return s
}
