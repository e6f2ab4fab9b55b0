package services

import (
	"context"
	"fmt"
	"html"
	"log"

	"innovation-review-api/config"
	"innovation-review-api/models"

	"gorm.io/gorm"
)

// Notifier tells judges about changes to their assignments. Failures never fail the request.
type Notifier interface {
	AssignmentsCreated(ctx context.Context, idea models.Idea, judges []models.Judge)
	AssignmentLocked(ctx context.Context, assignment models.Assignment)
}

type NopNotifier struct{}

func (NopNotifier) AssignmentsCreated(context.Context, models.Idea, []models.Judge) {}
func (NopNotifier) AssignmentLocked(context.Context, models.Assignment)             {}

// MailNotifier sends e-mail through config.SendMail.
type MailNotifier struct {
	db   *gorm.DB
	send func(to []string, subject, html string) error
}

func NewMailNotifier(db *gorm.DB) *MailNotifier {
	if db == nil {
		db = config.DB
	}
	return &MailNotifier{db: db, send: config.SendMail}
}

func (n *MailNotifier) emailsFor(ctx context.Context, judgeUserIDs []int) []string {
	if len(judgeUserIDs) == 0 {
		return nil
	}
	var emails []string
	if err := n.db.WithContext(ctx).
		Model(&models.User{}).
		Where("user_id IN ? AND delete_at IS NULL", judgeUserIDs).
		Pluck("email", &emails).Error; err != nil {
		log.Printf("[notify] failed to load judge e-mails: %v", err)
		return nil
	}
	return emails
}

func (n *MailNotifier) AssignmentsCreated(ctx context.Context, idea models.Idea, judges []models.Judge) {
	userIDs := make([]int, 0, len(judges))
	for _, j := range judges {
		userIDs = append(userIDs, j.UserID)
	}
	// Recipients are resolved before the request context ends; delivery continues after it.
	to := n.emailsFor(ctx, userIDs)
	subject := fmt.Sprintf("New evaluation assignment: %s", idea.Title)
	body := fmt.Sprintf("<p>You have been assigned to evaluate <strong>%s</strong>.</p><p>Download the evaluation template from your judge dashboard.</p>",
		html.EscapeString(idea.Title))
	// One message per judge keeps the panel composition private.
	for _, addr := range to {
		n.deliver([]string{addr}, subject, body)
	}
}

func (n *MailNotifier) AssignmentLocked(ctx context.Context, assignment models.Assignment) {
	if assignment.Judge == nil {
		return
	}
	to := n.emailsFor(ctx, []int{assignment.Judge.UserID})
	subject := fmt.Sprintf("Assignment #%d has been locked", assignment.ID)
	body := fmt.Sprintf("<p>Assignment #%d is now locked. No further uploads are accepted.</p>", assignment.ID)
	n.deliver(to, subject, body)
}

func (n *MailNotifier) deliver(to []string, subject, body string) {
	if len(to) == 0 {
		return
	}
	go func() {
		if err := n.send(to, subject, body); err != nil {
			log.Printf("[notify] failed to send %q to %d recipients: %v", subject, len(to), err)
		}
	}()
}
