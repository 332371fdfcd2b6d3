// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "originality-go/internal/model"

// RepositoryScanTask represents one document's asynchronous corpus-comparison job.
// 任务自带完整指纹，消费端无需回查数据库即可完成候选检索与重打分。
type RepositoryScanTask struct {
	ComparisonID uint                      `json:"comparison_id"`
	BatchID      string                    `json:"batch_id"`
	Category     string                    `json:"category"`
	FileName     string                    `json:"file_name"`
	TextObject   string                    `json:"text_object"`
	Fingerprint  model.DocumentFingerprint `json:"fingerprint"`
}
