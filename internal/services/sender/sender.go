// Package sender превращает задания из очереди в письма и отправляет
// их через SMTP транспорт.
package sender

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/kosttiik/subscription-notifier/internal/lib/sl"
	"github.com/kosttiik/subscription-notifier/internal/lib/smtp"
	"github.com/kosttiik/subscription-notifier/internal/models"
)

// Service отправляет письма по заданиям из очереди.
type Service struct {
	transport smtp.TransportInterface
	appURL    string
	log       *slog.Logger
}

// New создает новый экземпляр Service. appURL — внешний адрес приложения,
// используется для построения ссылок в письмах.
func New(transport smtp.TransportInterface, appURL string, log *slog.Logger) *Service {
	return &Service{
		transport: transport,
		appURL:    strings.TrimRight(appURL, "/"),
		log:       log,
	}
}

// HandleMessage обрабатывает одно сообщение очереди: десериализует задание,
// строит письмо нужного вида и отправляет его.
func (s *Service) HandleMessage(body []byte) error {
	var job models.EmailJob
	if err := json.Unmarshal(body, &job); err != nil {
		s.log.Error("failed to unmarshal email job", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	subject, bodyText, err := s.render(job)
	if err != nil {
		s.log.Error("failed to render email", slog.String("kind", job.Kind), sl.Err(err))
		return err
	}

	return s.sendEmail([]string{job.Email}, subject, bodyText)
}

func (s *Service) render(job models.EmailJob) (subject, body string, err error) {
	switch job.Kind {
	case models.EmailKindConfirmation:
		return s.renderConfirmation(job)
	case models.EmailKindVerification:
		return s.renderVerification(job)
	case models.EmailKindUpgradeLink:
		return s.renderUpgradeLink(job)
	case models.EmailKindChangeAlert:
		return s.renderChangeAlert(job)
	default:
		return "", "", fmt.Errorf("unknown email job kind: %q", job.Kind)
	}
}

func (s *Service) renderConfirmation(job models.EmailJob) (string, string, error) {
	subject := "Your subscription is confirmed"
	body := fmt.Sprintf(`Hello,

You are now subscribed to service change notifications (%s).

You can unsubscribe at any time using this link:
%s

If you did not request this subscription, simply ignore this email.`,
		job.SubscriptionType, s.unsubscribeLink(job.Email, job.UnsubscribeToken))
	return subject, body, nil
}

func (s *Service) renderVerification(job models.EmailJob) (string, string, error) {
	subject := "Confirm your unsubscribe request"
	body := fmt.Sprintf(`Hello,

We received a request to unsubscribe this address from change notifications.

To confirm, open this link within the next %d minutes:
%s/unsubscribe?email=%s&verify=%s

If you did not request this, ignore this email and your subscription will stay active.`,
		job.ExpiryMinutes, s.appURL, url.QueryEscape(job.Email), url.QueryEscape(job.VerificationToken))
	return subject, body, nil
}

func (s *Service) renderUpgradeLink(job models.EmailJob) (string, string, error) {
	subject := "Complete your premium upgrade"
	body := fmt.Sprintf(`Hello,

Follow this link to set a password and activate your premium plan:
%s/upgrade?token=%s

The link expires shortly after it was issued. If you did not request an upgrade, ignore this email.`,
		s.appURL, url.QueryEscape(job.ActionToken))
	return subject, body, nil
}

func (s *Service) renderChangeAlert(job models.EmailJob) (string, string, error) {
	if job.Stats == nil {
		return "", "", fmt.Errorf("change notification without stats")
	}
	subject := "Service IP range changes"
	if job.Date != "" {
		subject = fmt.Sprintf("Service IP range changes — %s", job.Date)
	}
	body := fmt.Sprintf(`Hello,

New changes were detected in the service IP ranges you follow:

  Services changed: %d
  Regions affected: %d
  Prefixes added:   %d
  Prefixes removed: %d

Unsubscribe:
%s`,
		job.Stats.ServicesChanged, job.Stats.Regions, job.Stats.Added, job.Stats.Removed,
		s.unsubscribeLink(job.Email, job.UnsubscribeToken))
	return subject, body, nil
}

func (s *Service) unsubscribeLink(email, token string) string {
	return fmt.Sprintf("%s/unsubscribe?email=%s&token=%s",
		s.appURL, url.QueryEscape(email), url.QueryEscape(token))
}

func (s *Service) sendEmail(to []string, subject, bodyText string) error {
	from := s.transport.GetSMTPUser()
	fromHeader := from
	if name := s.transport.GetFromName(); name != "" {
		fromHeader = fmt.Sprintf("%s <%s>", name, from)
	}

	msg := strings.Join([]string{
		"From: " + fromHeader,
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			s.log.Debug("failed to close SMTP client", sl.Err(closeErr))
		}
	}()

	if err := client.Mail(from); err != nil {
		s.log.Error("failed to set MAIL FROM", slog.String("from", from), sl.Err(err))
		return err
	}

	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", slog.String("recipient", addr), sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get data writer", sl.Err(err))
		return err
	}

	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}

	if err = wc.Close(); err != nil {
		s.log.Error("failed to close data writer", sl.Err(err))
		return err
	}

	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("email sent successfully", slog.Any("to", to))
	return nil
}
