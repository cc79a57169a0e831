package notifier

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"html/template"
	"io"

	"github.com/setrag/rail-booking-backend/internal/config"
	gomail "gopkg.in/gomail.v2"
)

// Sender delivers a composed message
type Sender interface {
	Send(msg *gomail.Message) error
}

// SMTPSender sends through an SMTP relay
type SMTPSender struct {
	dialer *gomail.Dialer
}

// NewSMTPSender creates an SMTPSender from config
func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.TLSConfig = &tls.Config{ServerName: cfg.Host}
	return &SMTPSender{dialer: dialer}
}

// Send dials the relay and sends msg
func (s *SMTPSender) Send(msg *gomail.Message) error {
	if err := s.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// Attachment is an in-memory file
type Attachment struct {
	Name    string
	Content []byte
}

// Mailer renders booking emails
type Mailer struct {
	from   string
	sender Sender
}

// NewMailer creates a new Mailer
func NewMailer(from string, sender Sender) *Mailer {
	return &Mailer{from: from, sender: sender}
}

// Send renders the template with data and sends it to the recipient
func (m *Mailer) Send(to, subject string, tmpl *template.Template, data interface{}, attachments ...Attachment) error {
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("failed to execute email template %s: %w", tmpl.Name(), err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body.String())

	for _, a := range attachments {
		content := a.Content
		msg.Attach(a.Name, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(content)
			return err
		}))
	}

	return m.sender.Send(msg)
}

var (
	bookingCreatedTemplate = template.Must(template.New("booking_created").Parse(`<p>Bonjour {{.PassengerName}},</p>
<p>Votre réservation <strong>{{.PNR}}</strong> est enregistrée : siège {{.SeatNo}}, montant {{.Amount}}.</p>
<p>Le siège est réservé pendant le paiement. Sans paiement, la réservation sera annulée.</p>
<p>SETRAG</p>`))

	bookingConfirmedTemplate = template.Must(template.New("booking_confirmed").Parse(`<p>Bonjour {{.PassengerName}},</p>
<p>Votre paiement est confirmé. Réservation <strong>{{.PNR}}</strong>, siège {{.SeatNo}}.</p>
<p>Votre billet électronique est joint à ce message.</p>
<p>Bon voyage avec la SETRAG.</p>`))

	bookingCancelledTemplate = template.Must(template.New("booking_cancelled").Parse(`<p>Bonjour {{.PassengerName}},</p>
<p>Votre réservation <strong>{{.PNR}}</strong> a été annulée ({{.PaymentStatus}}). Le siège {{.SeatNo}} a été libéré.</p>
<p>SETRAG</p>`))
)
