// Package notify delivers out-of-band alerts (email, push). Every delivery is
// fire-and-forget: failures are logged and swallowed, never propagated to the
// operation that triggered them.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

const expoPushURL = "https://exp.host/--/api/v2/push/send"

// Notifier sends urgent-issue mails and assignment pushes.
type Notifier struct {
	smtpHost string
	smtpPort int
	smtpUser string
	smtpPass string

	httpClient *http.Client
	logger     *logrus.Logger
}

func NewNotifier(logger *logrus.Logger) *Notifier {
	port := 587
	if p, err := strconv.Atoi(os.Getenv("SMTP_PORT")); err == nil && p > 0 {
		port = p
	}

	return &Notifier{
		smtpHost:   os.Getenv("SMTP_HOST"),
		smtpPort:   port,
		smtpUser:   os.Getenv("SMTP_USER"),
		smtpPass:   os.Getenv("SMTP_PASS"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// SendMailAsync dispatches the mail on its own goroutine after the triggering
// state change has committed.
func (n *Notifier) SendMailAsync(title, body, link, recipient string) {
	go func() {
		if err := n.sendMail(title, body, link, recipient); err != nil {
			n.logger.WithError(err).WithField("recipient", recipient).Error("Mail delivery failed")
		}
	}()
}

func (n *Notifier) sendMail(title, body, link, recipient string) error {
	if n.smtpHost == "" {
		return fmt.Errorf("SMTP_HOST not configured")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.smtpUser)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", title)
	m.SetBody("text/html", fmt.Sprintf(
		`<p>%s</p><p><a href=%q target="_blank">Click here</a></p>`, body, link))

	d := gomail.NewDialer(n.smtpHost, n.smtpPort, n.smtpUser, n.smtpPass)
	return d.DialAndSend(m)
}

// SendPushAsync posts a notification to the Expo push service for the staff
// member's registered device token.
func (n *Notifier) SendPushAsync(pushToken, title, body string) {
	go func() {
		if err := n.sendPush(pushToken, title, body); err != nil {
			n.logger.WithError(err).Error("Push delivery failed")
		}
	}()
}

func (n *Notifier) sendPush(pushToken, title, body string) error {
	payload, err := json.Marshal(map[string]string{
		"to":    pushToken,
		"title": title,
		"body":  body,
	})
	if err != nil {
		return err
	}

	resp, err := n.httpClient.Post(expoPushURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("push service responded with status %d", resp.StatusCode)
	}
	return nil
}
