package jobs

import "time"

// Status は掃除ジョブの実行状態を表します。
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "done"
	StatusFailed    Status = "error"
)

// ErrorInfo はジョブ失敗時のエラー情報を保持します。
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Record は直近の掃除ジョブの状態を表します。
type Record struct {
	RunID      string     `json:"runId"`
	Status     Status     `json:"status"`
	Deleted    int64      `json:"deleted"`
	Error      *ErrorInfo `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt time.Time  `json:"finishedAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}
