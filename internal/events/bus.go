package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// TopicQueueTasks 队列任务事件主题
const TopicQueueTasks = "queue_tasks"

// EventType 队列任务事件类型
type EventType string

const (
	EventTaskCreated   EventType = "task_created"
	EventTaskClaimed   EventType = "task_claimed"
	EventTaskUnclaimed EventType = "task_unclaimed"
	EventTaskCompleted EventType = "task_completed"
	EventTaskEscalated EventType = "task_escalated"
)

// QueueTaskEvent 队列任务事件
type QueueTaskEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TaskID    string    `json:"task_id"`
	QueueName string    `json:"queue_name"`
	FromQueue string    `json:"from_queue,omitempty"`
	Assignee  string    `json:"assignee,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher 事件发布接口
type Publisher interface {
	Publish(ctx context.Context, event *QueueTaskEvent) error
}

// Bus 基于 watermill gochannel 的进程内事件总线
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *logrus.Logger
}

// NewBus 创建事件总线
func NewBus(logger *logrus.Logger) *Bus {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            256,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		NewLogrusAdapter(logger),
	)
	return &Bus{pubsub: pubsub, logger: logger}
}

// Publish 发布事件
func (b *Bus) Publish(ctx context.Context, event *QueueTaskEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", string(event.Type))
	msg.Metadata.Set("task_id", event.TaskID)
	msg.Metadata.Set("queue_name", event.QueueName)

	if err := b.pubsub.Publish(TopicQueueTasks, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe 订阅队列任务事件,ctx 取消后通道关闭
func (b *Bus) Subscribe(ctx context.Context) (<-chan *QueueTaskEvent, error) {
	messages, err := b.pubsub.Subscribe(ctx, TopicQueueTasks)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan *QueueTaskEvent, 64)
	go func() {
		defer close(out)
		for msg := range messages {
			var event QueueTaskEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				b.logger.WithError(err).WithField("message_id", msg.UUID).Warn("dropping malformed queue event")
				msg.Ack()
				continue
			}
			select {
			case out <- &event:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()
	return out, nil
}

// Close 关闭事件总线
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// NopPublisher 不做任何事的发布者
type NopPublisher struct{}

// Publish 丢弃事件
func (NopPublisher) Publish(context.Context, *QueueTaskEvent) error {
	return nil
}

// logrusAdapter 将 watermill 日志输出到 logrus
type logrusAdapter struct {
	entry *logrus.Entry
}

// NewLogrusAdapter 创建 watermill 日志适配器
func NewLogrusAdapter(logger *logrus.Logger) watermill.LoggerAdapter {
	return &logrusAdapter{entry: logrus.NewEntry(logger).WithField("component", "watermill")}
}

func (a *logrusAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.entry.WithFields(logrus.Fields(fields)).WithError(err).Error(msg)
}

func (a *logrusAdapter) Info(msg string, fields watermill.LogFields) {
	a.entry.WithFields(logrus.Fields(fields)).Info(msg)
}

func (a *logrusAdapter) Debug(msg string, fields watermill.LogFields) {
	a.entry.WithFields(logrus.Fields(fields)).Debug(msg)
}

func (a *logrusAdapter) Trace(msg string, fields watermill.LogFields) {
	a.entry.WithFields(logrus.Fields(fields)).Trace(msg)
}

func (a *logrusAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &logrusAdapter{entry: a.entry.WithFields(logrus.Fields(fields))}
}
