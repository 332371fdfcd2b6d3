package model

import "time"

// AuditLog 对应于数据库中的 audit_logs 表，是只追加的审计轨迹。
// 每一次风险状态变化都要落一条记录，注明执行者、动作和驱动该决定的匹配证据，
// 供后续申诉/争议处理使用，而不仅仅是诊断日志。
type AuditLog struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	ComparisonID uint   `gorm:"not null;index" json:"comparisonId"`
	Actor        string `gorm:"type:varchar(50);not null" json:"actor"`
	Action       string `gorm:"type:varchar(50);not null" json:"action"`
	// Detail 是 JSON 序列化的上下文，通常包含状态与驱动决定的匹配列表。
	Detail    string    `gorm:"type:text" json:"detail"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (AuditLog) TableName() string {
	return "audit_logs"
}
