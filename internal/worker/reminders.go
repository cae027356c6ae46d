package worker

import (
	"context"
	"fmt"
	"log/slog"

	"taskify/backend/internal/models"

	"github.com/gofrs/uuid"
)

type TaskFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
}

// Reminders schedules one task_reminder job per task, due at the task's due
// date. Rescheduling a task replaces its pending reminder.
type Reminders struct {
	queue *JobQueue
}

func NewReminders(queue *JobQueue) *Reminders {
	return &Reminders{queue: queue}
}

func (r *Reminders) ScheduleReminder(ctx context.Context, task *models.Task) error {
	if task.DueDate == nil || task.IsCompleted() {
		return r.CancelReminder(ctx, task.ID)
	}
	return r.queue.EnqueueAt(ctx, reminderJobID(task.ID), JobTypeTaskReminder,
		map[string]string{"task_id": task.ID.String()}, *task.DueDate)
}

func (r *Reminders) CancelReminder(ctx context.Context, taskID uuid.UUID) error {
	return r.queue.Cancel(ctx, reminderJobID(taskID))
}

func reminderJobID(taskID uuid.UUID) string {
	return string(JobTypeTaskReminder) + ":" + taskID.String()
}

// ReminderHandler re-reads the task so a reminder never fires for a task
// that was completed or deleted after the job was queued.
func ReminderHandler(tasks TaskFinder) JobHandler {
	return func(ctx context.Context, job *Job) error {
		id, err := uuid.FromString(job.Payload["task_id"])
		if err != nil {
			return fmt.Errorf("invalid task id in job %s: %w", job.ID, err)
		}

		task, err := tasks.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if task == nil || task.IsCompleted() {
			return nil
		}

		slog.InfoContext(ctx, "task due",
			"task_id", task.ID,
			"user_id", task.UserID,
			"title", task.Title,
			"due_date", task.DueDate,
		)
		return nil
	}
}
