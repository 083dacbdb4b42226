package store

import "strconv"

const (
	ResultKeyPrefix    = "result:"
	PendingKeyPrefix   = "pending:"
	JobKeyPrefix       = "job:"
	ResultJobKeyPrefix = "resultjob:"
	RateLimitKeyPrefix = "ratelimit:"
)

// ResultKey 完成结果 result:<memberId>
func ResultKey(memberID string) string {
	return ResultKeyPrefix + memberID
}

// PendingKey 在途标记 pending:<memberId>
func PendingKey(memberID string) string {
	return PendingKeyPrefix + memberID
}

// JobKey 任务记录 job:<jobId>
func JobKey(jobID string) string {
	return JobKeyPrefix + jobID
}

// ResultJobKey 结果反向索引 resultjob:<jobId> → memberId
func ResultJobKey(jobID string) string {
	return ResultJobKeyPrefix + jobID
}

// RateLimitKey 限流窗口计数 ratelimit:<窗口起始 unix 秒>
func RateLimitKey(windowStart int64) string {
	return RateLimitKeyPrefix + strconv.FormatInt(windowStart, 10)
}
