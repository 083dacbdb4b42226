package framework

// Message 消息结构（框架内部流转）
type Message struct {
	ID    string // 消息 ID（list 队列为 jobId，lmstfy 为其自身 job ID）
	Queue string // 队列名称
	Data  []byte // 原始 Job 数据
}

// Outcome 消息处理结果
type Outcome int

const (
	// OutcomeAck 处理完成（成功或已记录失败），确认消息
	OutcomeAck Outcome = iota
	// OutcomeRelease 暂时性错误，重新投递
	OutcomeRelease
	// OutcomeBury 无法处理的消息，丢弃并记录
	OutcomeBury
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAck:
		return "ack"
	case OutcomeRelease:
		return "release"
	case OutcomeBury:
		return "bury"
	default:
		return "unknown"
	}
}
