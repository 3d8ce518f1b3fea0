package mailer

import (
	"fmt"

	"carmarket/internal/listing/domain"
	"carmarket/internal/platform/logger"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Mailer sends transactional email to sellers.
type Mailer interface {
	SendListingCreatedEmail(toEmail, sellerName string, listing *domain.Listing) error
}

// SMTPMailer sends mail over SMTP via gomail.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
	logger *logger.Logger
}

func NewSMTPMailer(host string, port int, email, password string, log *logger.Logger) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(host, port, email, password),
		from:   email,
		logger: log.Named("Mailer"),
	}
}

// SendListingCreatedEmail confirms to the seller that their listing is
// live. Skips silently when no sender account is configured.
func (m *SMTPMailer) SendListingCreatedEmail(toEmail, sellerName string, listing *domain.Listing) error {
	if m.from == "" {
		m.logger.Debug("SMTP sender not configured, skipping listing-created email")
		return nil
	}
	if toEmail == "" {
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", toEmail)
	msg.SetHeader("Subject", fmt.Sprintf("Your listing %q is live", listing.Title()))

	greeting := sellerName
	if greeting == "" {
		greeting = "there"
	}
	body := fmt.Sprintf(
		"<p>Hi %s,</p>"+
			"<p>Your listing <b>%s</b> (%d, %.0f km) has been published and is now visible to buyers.</p>"+
			"<p>Asking price: %.2f</p>"+
			"<p>You can edit or remove it from your dashboard at any time.</p>",
		greeting, listing.Title(), listing.Year, listing.Mileage, listing.Price,
	)
	msg.SetBody("text/html", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		m.logger.Error("Failed to send listing-created email",
			zap.String("to", toEmail), zap.String("listing_id", listing.ID), zap.Error(err))
		return fmt.Errorf("send listing-created email: %w", err)
	}
	m.logger.Info("Listing-created email sent", zap.String("to", toEmail), zap.String("listing_id", listing.ID))
	return nil
}
