package repository

import (
	"encoding/json"
	"originality-go/internal/model"
	"originality-go/pkg/log"

	"gorm.io/gorm"
)

// AuditRepository 是只追加的审计轨迹。
// 每一次状态转变都要在这里留痕：执行者、动作以及驱动决定的匹配证据。
type AuditRepository interface {
	Append(comparisonID uint, actor, action string, detail interface{}) error
	FindByComparisonID(comparisonID uint) ([]model.AuditLog, error)
}

// auditRepository 是 AuditRepository 接口的 GORM 实现。
type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository 创建一个新的 AuditRepository 实例。
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

// Append 追加一条审计记录。detail 会被序列化为 JSON；
// 序列化失败不阻断主流程，但会留下告警日志。
func (r *auditRepository) Append(comparisonID uint, actor, action string, detail interface{}) error {
	detailJSON := ""
	if detail != nil {
		b, err := json.Marshal(detail)
		if err != nil {
			log.Warnf("[Audit] 序列化审计详情失败: comparisonID=%d, action=%s, err=%v", comparisonID, action, err)
		} else {
			detailJSON = string(b)
		}
	}
	return r.db.Create(&model.AuditLog{
		ComparisonID: comparisonID,
		Actor:        actor,
		Action:       action,
		Detail:       detailJSON,
	}).Error
}

// FindByComparisonID 按时间序返回一行结果的全部审计记录。
func (r *auditRepository) FindByComparisonID(comparisonID uint) ([]model.AuditLog, error) {
	var logs []model.AuditLog
	err := r.db.Where("comparison_id = ?", comparisonID).Order("id asc").Find(&logs).Error
	return logs, err
}
