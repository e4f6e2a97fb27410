package processor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"gitlab.ozon.dev/qwestard/possync/internal/kafka"
	"gitlab.ozon.dev/qwestard/possync/internal/repository"
)

// TaskProcessor relays audit entries from the outbox table to Kafka.
// Failed publishes are retried after retryDelay until maxAttempts.
type TaskProcessor struct {
	repo         repository.TaskRepository
	producer     kafka.Publisher
	topic        string
	pollInterval time.Duration
	limit        int
	maxAttempts  int
	retryDelay   time.Duration
	log          logrus.FieldLogger
}

func NewTaskProcessor(repo repository.TaskRepository, producer kafka.Publisher, topic string, pollInterval time.Duration, limit int, log logrus.FieldLogger) *TaskProcessor {
	return &TaskProcessor{
		repo:         repo,
		producer:     producer,
		topic:        topic,
		pollInterval: pollInterval,
		limit:        limit,
		maxAttempts:  3,
		retryDelay:   2 * time.Second,
		log:          log.WithField("component", "outbox-relay"),
	}
}

func (p *TaskProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessPending(ctx)
			ticker.Reset(p.pollInterval)
		}
	}
}

// ProcessPending relays one batch of due tasks.
func (p *TaskProcessor) ProcessPending(ctx context.Context) {
	tasks, err := p.repo.GetPendingTasks(ctx, p.limit, p.maxAttempts)
	if err != nil {
		p.log.WithError(err).Error("fetch pending tasks")
		return
	}
	for _, task := range tasks {
		log := p.log.WithField("task_id", task.ID)
		if err := p.repo.MarkTaskProcessing(ctx, task.ID); err != nil {
			log.WithError(err).Error("mark task processing")
			continue
		}
		if err := p.producer.Publish(p.topic, subjectOf(task.Payload), task.Payload); err != nil {
			p.fail(ctx, task, err)
			continue
		}
		if err := p.repo.DeleteTask(ctx, task.ID); err != nil {
			log.WithError(err).Error("delete task after publish")
			continue
		}
		log.Debug("task relayed")
	}
}

func (p *TaskProcessor) fail(ctx context.Context, task *repository.Task, err error) {
	attempt := task.AttemptCount + 1
	status := repository.TaskStatusFailed
	if attempt >= p.maxAttempts {
		status = repository.TaskStatusNoAttemptsLeft
	}
	log := p.log.WithFields(logrus.Fields{"task_id": task.ID, "attempt": attempt})
	if errUpd := p.repo.UpdateTaskFailure(ctx, task.ID, attempt, status, time.Now().Add(p.retryDelay)); errUpd != nil {
		log.WithError(errUpd).Error("update task failure")
	}
	log.WithError(err).Warn("publish failed")
}

// subjectOf keys messages by audit subject so one order's entries stay
// ordered within a partition.
func subjectOf(payload []byte) string {
	var e struct {
		Subject string `json:"subject"`
	}
	_ = json.Unmarshal(payload, &e)
	return e.Subject
}
