package messaging

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"pipeline_backend/internal/automation"
)

//go:embed templates/*.html
var templateFS embed.FS

var messageTemplate = template.Must(template.ParseFS(templateFS, "templates/message.html"))

type messageData struct {
	Title   string
	Heading string
	Lines   []string
}

// Message is one rendered customer message ready for delivery.
type Message struct {
	Subject string
	HTML    string
	Text    string
}

const timeLayout = "Monday 2 January 2006, 15:04 MST"

// Render builds the subject, HTML body, and plain-text body for a template
// name and its payload. Unknown template names are an error so a playbook
// typo surfaces in the outbox instead of sending an empty mail.
func Render(name string, p automation.MessagePayload) (Message, error) {
	var (
		subject string
		lines   []string
	)

	when := ""
	if p.StartTime != nil {
		when = p.StartTime.Local().Format(timeLayout)
	}

	switch name {
	case "booking_confirmation":
		subject = fmt.Sprintf("Your %s is booked", humanBookingType(p.BookingType))
		lines = []string{
			fmt.Sprintf("Hi %s,", p.ContactName),
			fmt.Sprintf("Your %s is confirmed for %s.", humanBookingType(p.BookingType), when),
		}
		if p.MeetingLink != "" {
			lines = append(lines, fmt.Sprintf("Join via: %s", p.MeetingLink))
		}
		lines = append(lines, "Need to change the time? Reply to this message or use your booking link.")
	case "booking_reminder":
		subject = fmt.Sprintf("Reminder: %s tomorrow", humanBookingType(p.BookingType))
		lines = []string{
			fmt.Sprintf("Hi %s,", p.ContactName),
			fmt.Sprintf("A quick reminder about your %s on %s.", humanBookingType(p.BookingType), when),
		}
		if p.MeetingLink != "" {
			lines = append(lines, fmt.Sprintf("Join via: %s", p.MeetingLink))
		}
	case "deposit_instructions":
		subject = "Next step: your deposit"
		lines = []string{
			fmt.Sprintf("Hi %s,", p.ContactName),
			"Great news, your proposal is agreed. To lock in your project slot we ask for the deposit described in your proposal.",
			"Once the deposit arrives we schedule your onboarding visit straight away.",
		}
	case "deposit_received":
		subject = "Deposit received, you're all set"
		lines = []string{
			fmt.Sprintf("Hi %s,", p.ContactName),
			"We received your deposit. Our team will reach out shortly to schedule your onboarding visit.",
		}
	default:
		return Message{}, fmt.Errorf("unknown message template %q", name)
	}

	html, err := renderHTML(messageData{Title: subject, Heading: subject, Lines: lines})
	if err != nil {
		return Message{}, err
	}

	return Message{
		Subject: subject,
		HTML:    html,
		Text:    plainText(lines),
	}, nil
}

func renderHTML(data messageData) (string, error) {
	var buf bytes.Buffer
	if err := messageTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render message template: %w", err)
	}
	return buf.String(), nil
}

func plainText(lines []string) string {
	var buf bytes.Buffer
	for i, line := range lines {
		if i > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(line)
	}
	return buf.String()
}

func humanBookingType(bookingType string) string {
	switch bookingType {
	case "initial-consultation":
		return "initial consultation"
	case "design-call":
		return "design call"
	case "onboarding-visit":
		return "onboarding visit"
	default:
		return "appointment"
	}
}
