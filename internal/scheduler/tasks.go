package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskBookingReminder = "bookings.reminder"

const TaskOutboxMessageDue = "automation.outbox.due"

type BookingReminderPayload struct {
	BookingID string `json:"bookingId"`
}

type OutboxMessageDuePayload struct {
	OutboxID string `json:"outboxId"`
}

func NewBookingReminderTask(payload BookingReminderPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBookingReminder, data), nil
}

func ParseBookingReminderPayload(task *asynq.Task) (BookingReminderPayload, error) {
	var payload BookingReminderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return BookingReminderPayload{}, err
	}
	return payload, nil
}

func NewOutboxMessageDueTask(payload OutboxMessageDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOutboxMessageDue, data), nil
}

func ParseOutboxMessageDuePayload(task *asynq.Task) (OutboxMessageDuePayload, error) {
	var payload OutboxMessageDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return OutboxMessageDuePayload{}, err
	}
	return payload, nil
}
