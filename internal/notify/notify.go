// Package notify delivers playbook step side effects: customer outreach
// email and internal team alerts, both over SMTP.
package notify

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/smtp"
	"strings"
	"time"

	"github.com/ignite/retention-engine/internal/config"
)

// Alerter sends outreach email and internal alerts. When SMTP is not
// configured it logs what it would have sent and reports success, so
// playbooks keep advancing in environments without a mail relay.
type Alerter struct {
	db       *sql.DB
	smtpHost string
	smtpPort int
	from     string
	team     []string
}

// NewAlerter creates an SMTP alerter. db resolves account contact
// addresses from the accounts table.
func NewAlerter(db *sql.DB, cfg config.AlertConfig) *Alerter {
	return &Alerter{
		db:       db,
		smtpHost: cfg.SMTPHost,
		smtpPort: cfg.SMTPPort,
		from:     cfg.From,
		team:     cfg.To,
	}
}

// SendEmail sends an outreach email to the account's primary contact.
func (a *Alerter) SendEmail(ctx context.Context, accountID, subject, body string) error {
	contact, err := a.contactEmail(ctx, accountID)
	if err != nil {
		return fmt.Errorf("resolve contact for %s: %w", accountID, err)
	}
	if contact == "" {
		return fmt.Errorf("account %s has no contact email", accountID)
	}
	return a.send(subject, body, []string{contact})
}

// SendAlert raises an internal alert for the account team.
func (a *Alerter) SendAlert(_ context.Context, accountID, subject, details string) error {
	body := fmt.Sprintf(`Retention Alert
===============

Account:  %s
Time:     %s

%s

---
Automated alert from the retention engine.
`, accountID, time.Now().Format(time.RFC3339), details)

	return a.send(fmt.Sprintf("[retention] %s — %s", subject, accountID), body, a.team)
}

func (a *Alerter) contactEmail(ctx context.Context, accountID string) (string, error) {
	var email sql.NullString
	err := a.db.QueryRowContext(ctx, `
		SELECT primary_contact_email FROM accounts WHERE id = $1
	`, accountID).Scan(&email)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return email.String, nil
}

func (a *Alerter) send(subject, body string, to []string) error {
	if a.smtpHost == "" || len(to) == 0 {
		log.Printf("[alerter] would send: %s", subject)
		return nil
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		a.from, strings.Join(to, ","), subject, body)

	addr := fmt.Sprintf("%s:%d", a.smtpHost, a.smtpPort)
	if err := smtp.SendMail(addr, nil, a.from, to, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send %q: %w", subject, err)
	}
	return nil
}
