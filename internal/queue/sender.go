package queue

import (
	"context"
	"fmt"

	"github.com/vhvplatform/go-notification-orchestrator/internal/domain"
	"github.com/vhvplatform/go-notification-orchestrator/internal/smtp"
	"github.com/vhvplatform/go-notification-orchestrator/internal/template"
)

// JobSender renders and sends one email job
type JobSender interface {
	Send(ctx context.Context, job *domain.EmailJob) error
}

// Mailer delivers a rendered message
type Mailer interface {
	Send(ctx context.Context, msg smtp.Message) error
}

// TemplateSender renders jobs with the template renderer and hands them to the mailer
type TemplateSender struct {
	renderer *template.Renderer
	mailer   Mailer
}

// NewTemplateSender creates a new template sender
func NewTemplateSender(renderer *template.Renderer, mailer Mailer) *TemplateSender {
	return &TemplateSender{renderer: renderer, mailer: mailer}
}

// Send renders job.Template and sends it; a non-empty job.Subject wins over the template subject
func (s *TemplateSender) Send(ctx context.Context, job *domain.EmailJob) error {
	if job.To == "" {
		return fmt.Errorf("email job %s has no recipient", job.ID)
	}
	out, err := s.renderer.Render(job.Template, job.Data)
	if err != nil {
		return err
	}

	subject := out.Subject
	if job.Subject != "" {
		subject = job.Subject
	}
	return s.mailer.Send(ctx, smtp.Message{
		To:      job.To,
		Subject: subject,
		HTML:    out.HTML,
		Text:    out.Text,
	})
}
