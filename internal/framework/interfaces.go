package framework

import (
	"context"
	"time"
)

// MessageSource 消息源接口（适配 Redis list / lmstfy）
type MessageSource interface {
	// Consume 消费消息（阻塞，直到拉取到消息或超时），超时返回 nil
	Consume(ctx context.Context, queue string, timeout time.Duration, ttr time.Duration) (*Message, error)

	// Ack 确认消息（删除消息）
	Ack(ctx context.Context, msg *Message) error

	// Release 放回队列等待重新投递
	Release(ctx context.Context, msg *Message) error
}

// Handler 业务处理函数
type Handler func(ctx context.Context, msg *Message) Outcome
