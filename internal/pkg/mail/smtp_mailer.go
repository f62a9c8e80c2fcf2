package mail

import (
	"fmt"
	"log"
	"net/smtp"

	"github.com/permitradar/permitradar/app/models"
	"github.com/permitradar/permitradar/internal/pkg/env"
)

// SMTPMailer sends emails via SMTP
func SendMail(to string, subject string, body string) error {
	host := env.GetEnv("SMTP_HOST", "")
	port := env.GetEnv("SMTP_PORT", "")
	username := env.GetEnv("SMTP_USERNAME", "")
	password := env.GetEnv("SMTP_PASSWORD", "")
	sender := env.GetEnv("SMTP_SENDER", "")

	if sender == "" {
		sender = fmt.Sprintf("no-reply@%s", "localhost")
		log.Printf("SMTP_SENDER not set, using default sender: %s", sender)
	}

	var auth smtp.Auth
	if username != "" && password != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}

	addr := fmt.Sprintf("%s:%s", host, port)

	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)

	err := smtp.SendMail(addr, auth, sender, []string{to}, msg)
	if err != nil {
		log.Printf("SMTP send error: %v", err)
	} else {
		log.Printf("Email sent to %s via %s", to, addr)
	}
	return err
}

// SendAssignmentNotification tells a subscriber their fresh lead batch is ready.
func SendAssignmentNotification(to string, assignment *models.LeadAssignment) error {
	subject := fmt.Sprintf("Your %d new permit leads for %s are ready", assignment.LeadCount, assignment.City)
	body := fmt.Sprintf(
		"<p>Hi,</p>"+
			"<p>We just assigned <strong>%d new construction permit leads</strong> for <strong>%s</strong> to your account.</p>"+
			"<p>Log in to the portal to download the latest CSV for your city.</p>"+
			"<p>Assignment reference: %s</p>",
		assignment.LeadCount, assignment.City, assignment.PublicID,
	)
	return SendMail(to, subject, body)
}
