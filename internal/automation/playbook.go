package automation

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// BookingPlay describes the automation steps that follow one booking type.
type BookingPlay struct {
	CalendarTitle        string `yaml:"calendarTitle"`
	MeetingLink          bool   `yaml:"meetingLink"`
	ConfirmationTemplate string `yaml:"confirmationTemplate"`
	ReminderTemplate     string `yaml:"reminderTemplate"`
	ReminderHoursBefore  int    `yaml:"reminderHoursBefore"`
	PrepTaskTitle        string `yaml:"prepTaskTitle"`
	PrepTaskHoursBefore  int    `yaml:"prepTaskHoursBefore"`
}

// StageMessage is one queued message to send when a stage is entered.
type StageMessage struct {
	Channel  string `yaml:"channel"`
	Template string `yaml:"template"`
}

// Playbook maps booking types and pipeline stages to their automation steps.
// It is loaded from YAML so the steps can change without a deploy.
type Playbook struct {
	Bookings map[string]BookingPlay    `yaml:"bookings"`
	Stages   map[string][]StageMessage `yaml:"stages"`
}

// LoadPlaybook reads the playbook file. A missing file falls back to the
// built-in defaults; a malformed file is an error.
func LoadPlaybook(path string) (*Playbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPlaybook(), nil
		}
		return nil, fmt.Errorf("read playbook: %w", err)
	}

	var pb Playbook
	if err := yaml.Unmarshal(data, &pb); err != nil {
		return nil, fmt.Errorf("parse playbook: %w", err)
	}
	if pb.Bookings == nil {
		pb.Bookings = map[string]BookingPlay{}
	}
	if pb.Stages == nil {
		pb.Stages = map[string][]StageMessage{}
	}
	return &pb, nil
}

// DefaultPlaybook returns the automation steps used when no playbook file is
// deployed.
func DefaultPlaybook() *Playbook {
	return &Playbook{
		Bookings: map[string]BookingPlay{
			"initial-consultation": {
				CalendarTitle:        "Initial consultation with {{name}}",
				MeetingLink:          true,
				ConfirmationTemplate: "booking_confirmation",
				ReminderTemplate:     "booking_reminder",
				ReminderHoursBefore:  24,
				PrepTaskTitle:        "Prepare discovery questions for {{name}}",
				PrepTaskHoursBefore:  2,
			},
			"design-call": {
				CalendarTitle:        "Design call with {{name}}",
				MeetingLink:          true,
				ConfirmationTemplate: "booking_confirmation",
				ReminderTemplate:     "booking_reminder",
				ReminderHoursBefore:  24,
				PrepTaskTitle:        "Review design brief for {{name}}",
				PrepTaskHoursBefore:  4,
			},
			"onboarding-visit": {
				CalendarTitle:        "Onboarding visit at {{name}}",
				MeetingLink:          false,
				ConfirmationTemplate: "booking_confirmation",
				ReminderTemplate:     "booking_reminder",
				ReminderHoursBefore:  24,
				PrepTaskTitle:        "Pack survey kit for visit to {{name}}",
				PrepTaskHoursBefore:  12,
			},
		},
		Stages: map[string][]StageMessage{
			"awaiting_deposit": {
				{Channel: "email", Template: "deposit_instructions"},
			},
			"deposit_paid": {
				{Channel: "email", Template: "deposit_received"},
			},
		},
	}
}

// Play returns the steps for a booking type, falling back to a minimal
// confirmation-only play for unknown types.
func (pb *Playbook) Play(bookingType string) BookingPlay {
	if play, ok := pb.Bookings[bookingType]; ok {
		return play
	}
	return BookingPlay{
		CalendarTitle:        strings.ReplaceAll(bookingType, "-", " ") + " with {{name}}",
		ConfirmationTemplate: "booking_confirmation",
		ReminderTemplate:     "booking_reminder",
		ReminderHoursBefore:  24,
	}
}

// render substitutes the {{name}} placeholder.
func render(template, name string) string {
	return strings.ReplaceAll(template, "{{name}}", name)
}
