package repository

import (
	"context"
	"time"

	"github.com/mautops/casework-gin/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueueTaskRepository 队列任务仓储接口
// 所有状态变更都是带条件的单语句更新,返回值表示是否命中
type QueueTaskRepository interface {
	InsertIfAbsent(ctx context.Context, task *model.QueueTaskModel) (bool, error)
	ClaimIfOpen(ctx context.Context, taskID, userID string, now time.Time) (bool, error)
	UnclaimIfClaimed(ctx context.Context, taskID string, now time.Time) (bool, error)
	CompleteIfClaimed(ctx context.Context, taskID, completedBy string, now time.Time) (bool, error)
	CompleteIfActive(ctx context.Context, taskID string, now time.Time) (bool, error)
	ReassignQueue(ctx context.Context, taskID, fromQueue, toQueue string, now time.Time) (bool, error)
	FindByID(ctx context.Context, taskID string) (*model.QueueTaskModel, error)
	FindByFilter(ctx context.Context, filter *QueueTaskFilter) ([]*model.QueueTaskModel, int64, error)
	FindAvailable(ctx context.Context, queues []string, limit int) ([]*model.QueueTaskModel, error)
	AggregateByQueue(ctx context.Context, cutoffs AggregateCutoffs) ([]*QueueAggregate, error)
}

// QueueTaskFilter 队列任务查询过滤器
type QueueTaskFilter struct {
	Queues   []string
	Status   *model.QueueTaskStatus
	Assignee *string
	Offset   int
	Limit    int
}

// AggregateCutoffs 聚合统计使用的时间分界点
type AggregateCutoffs struct {
	HourAgo     time.Time
	DayAgo      time.Time
	WeekAgo     time.Time
	WarningAgo  time.Time
	CriticalAgo time.Time
}

// QueueAggregate 单个队列的聚合计数
type QueueAggregate struct {
	QueueName             string
	OpenCount             int64
	ClaimedCount          int64
	CompletedCount        int64
	OpenOlderThanHour     int64
	OpenOlderThanDay      int64
	OpenOlderThanWeek     int64
	OpenOlderThanWarning  int64
	OpenOlderThanCritical int64
	CompletedLastDay      int64
	CompletedLastWeek     int64
}

// queueTaskRepository 队列任务仓储实现
type queueTaskRepository struct {
	db *gorm.DB
}

// NewQueueTaskRepository 创建队列任务仓储
func NewQueueTaskRepository(db *gorm.DB) QueueTaskRepository {
	return &queueTaskRepository{db: db}
}

// InsertIfAbsent 任务不存在时插入,已存在时不做任何修改
func (r *queueTaskRepository) InsertIfAbsent(ctx context.Context, task *model.QueueTaskModel) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "task_id"}}, DoNothing: true}).
		Create(task)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ClaimIfOpen 仅当任务为 OPEN 且未分配时认领
func (r *queueTaskRepository) ClaimIfOpen(ctx context.Context, taskID, userID string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.QueueTaskModel{}).
		Where("task_id = ? AND status = ? AND assignee IS NULL", taskID, model.QueueTaskStatusOpen).
		Updates(map[string]interface{}{
			"status":     model.QueueTaskStatusClaimed,
			"assignee":   userID,
			"claimed_at": now,
			"updated_at": now,
		})
	return result.RowsAffected == 1, result.Error
}

// UnclaimIfClaimed 仅当任务为 CLAIMED 时释放回队列
func (r *queueTaskRepository) UnclaimIfClaimed(ctx context.Context, taskID string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.QueueTaskModel{}).
		Where("task_id = ? AND status = ?", taskID, model.QueueTaskStatusClaimed).
		Updates(map[string]interface{}{
			"status":     model.QueueTaskStatusOpen,
			"assignee":   nil,
			"claimed_at": nil,
			"updated_at": now,
		})
	return result.RowsAffected == 1, result.Error
}

// CompleteIfClaimed 仅当任务为 CLAIMED 时完成
func (r *queueTaskRepository) CompleteIfClaimed(ctx context.Context, taskID, completedBy string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.QueueTaskModel{}).
		Where("task_id = ? AND status = ?", taskID, model.QueueTaskStatusClaimed).
		Updates(map[string]interface{}{
			"status":       model.QueueTaskStatusCompleted,
			"assignee":     nil,
			"claimed_at":   nil,
			"completed_at": now,
			"completed_by": completedBy,
			"updated_at":   now,
		})
	return result.RowsAffected == 1, result.Error
}

// CompleteIfActive 将 OPEN 或 CLAIMED 任务标记为完成（引擎侧完成信号）
func (r *queueTaskRepository) CompleteIfActive(ctx context.Context, taskID string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.QueueTaskModel{}).
		Where("task_id = ? AND status IN ?", taskID, []model.QueueTaskStatus{model.QueueTaskStatusOpen, model.QueueTaskStatusClaimed}).
		Updates(map[string]interface{}{
			"status":       model.QueueTaskStatusCompleted,
			"assignee":     nil,
			"claimed_at":   nil,
			"completed_at": now,
			"updated_at":   now,
		})
	return result.RowsAffected == 1, result.Error
}

// ReassignQueue 将未完成任务移到另一个队列并重置为 OPEN
func (r *queueTaskRepository) ReassignQueue(ctx context.Context, taskID, fromQueue, toQueue string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.QueueTaskModel{}).
		Where("task_id = ? AND queue_name = ? AND status IN ?", taskID, fromQueue,
			[]model.QueueTaskStatus{model.QueueTaskStatusOpen, model.QueueTaskStatusClaimed}).
		Updates(map[string]interface{}{
			"queue_name":       toQueue,
			"status":           model.QueueTaskStatusOpen,
			"assignee":         nil,
			"claimed_at":       nil,
			"escalation_count": gorm.Expr("escalation_count + 1"),
			"updated_at":       now,
		})
	return result.RowsAffected == 1, result.Error
}

// FindByID 根据任务 ID 查找任务
func (r *queueTaskRepository) FindByID(ctx context.Context, taskID string) (*model.QueueTaskModel, error) {
	var task model.QueueTaskModel
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// FindByFilter 根据过滤器分页查找任务,返回任务列表和总数
func (r *queueTaskRepository) FindByFilter(ctx context.Context, filter *QueueTaskFilter) ([]*model.QueueTaskModel, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.QueueTaskModel{})

	if filter != nil {
		if filter.Queues != nil {
			query = query.Where("queue_name IN ?", filter.Queues)
		}
		if filter.Status != nil {
			query = query.Where("status = ?", *filter.Status)
		}
		if filter.Assignee != nil {
			query = query.Where("assignee = ?", *filter.Assignee)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("priority DESC").Order("created_at ASC")
	if filter != nil {
		if filter.Offset > 0 {
			query = query.Offset(filter.Offset)
		}
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
	}

	var tasks []*model.QueueTaskModel
	if err := query.Find(&tasks).Error; err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// FindAvailable 查找指定队列中可认领的任务,按优先级降序、创建时间升序
func (r *queueTaskRepository) FindAvailable(ctx context.Context, queues []string, limit int) ([]*model.QueueTaskModel, error) {
	var tasks []*model.QueueTaskModel
	if len(queues) == 0 {
		return tasks, nil
	}
	query := r.db.WithContext(ctx).
		Where("queue_name IN ? AND status = ? AND assignee IS NULL", queues, model.QueueTaskStatusOpen).
		Order("priority DESC").
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&tasks).Error
	return tasks, err
}

// AggregateByQueue 按队列聚合各状态计数与积压时长分布
func (r *queueTaskRepository) AggregateByQueue(ctx context.Context, cutoffs AggregateCutoffs) ([]*QueueAggregate, error) {
	open := model.QueueTaskStatusOpen
	completed := model.QueueTaskStatusCompleted

	var rows []*QueueAggregate
	err := r.db.WithContext(ctx).Model(&model.QueueTaskModel{}).
		Select(`queue_name,
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS open_count,
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS claimed_count,
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS completed_count,
			SUM(CASE WHEN status = ? AND created_at < ? THEN 1 ELSE 0 END) AS open_older_than_hour,
			SUM(CASE WHEN status = ? AND created_at < ? THEN 1 ELSE 0 END) AS open_older_than_day,
			SUM(CASE WHEN status = ? AND created_at < ? THEN 1 ELSE 0 END) AS open_older_than_week,
			SUM(CASE WHEN status = ? AND created_at < ? THEN 1 ELSE 0 END) AS open_older_than_warning,
			SUM(CASE WHEN status = ? AND created_at < ? THEN 1 ELSE 0 END) AS open_older_than_critical,
			SUM(CASE WHEN status = ? AND completed_at >= ? THEN 1 ELSE 0 END) AS completed_last_day,
			SUM(CASE WHEN status = ? AND completed_at >= ? THEN 1 ELSE 0 END) AS completed_last_week`,
			open, model.QueueTaskStatusClaimed, completed,
			open, cutoffs.HourAgo,
			open, cutoffs.DayAgo,
			open, cutoffs.WeekAgo,
			open, cutoffs.WarningAgo,
			open, cutoffs.CriticalAgo,
			completed, cutoffs.DayAgo,
			completed, cutoffs.WeekAgo,
		).
		Group("queue_name").
		Order("queue_name").
		Scan(&rows).Error
	return rows, err
}
