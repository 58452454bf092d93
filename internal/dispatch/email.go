package dispatch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"lunaralarm/internal/model"
)

// EmailConfig configures the SMTP channel. To defaults to From, so the
// message is sent to the account owner.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// Email sends each notification as a styled HTML mail over SMTP with
// STARTTLS.
type Email struct {
	cfg  EmailConfig
	dial func(ctx context.Context, addr string) (net.Conn, error)
}

func NewEmail(cfg EmailConfig) *Email {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if len(cfg.To) == 0 {
		cfg.To = []string{cfg.From}
	}
	d := &net.Dialer{Timeout: 15 * time.Second}
	return &Email{cfg: cfg, dial: func(ctx context.Context, addr string) (net.Conn, error) {
		return d.DialContext(ctx, "tcp", addr)
	}}
}

func (e *Email) Name() string { return "email" }

func (e *Email) Send(ctx context.Context, n model.Notification) error {
	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))
	conn, err := e.dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("email: dial %s: %w", addr, err)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	c, err := smtp.NewClient(conn, e.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("email: handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: e.cfg.Host}); err != nil {
			return fmt.Errorf("email: starttls: %w", err)
		}
	}
	if e.cfg.Username != "" {
		auth := smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("email: auth: %w", err)
		}
	}

	if err := c.Mail(e.cfg.From); err != nil {
		return fmt.Errorf("email: MAIL FROM: %w", err)
	}
	for _, to := range e.cfg.To {
		if err := c.Rcpt(to); err != nil {
			return fmt.Errorf("email: RCPT TO %s: %w", to, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("email: DATA: %w", err)
	}
	if _, err := w.Write(buildMessage(e.cfg.From, e.cfg.To, n, time.Now())); err != nil {
		w.Close()
		return fmt.Errorf("email: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("email: finish DATA: %w", err)
	}
	return c.Quit()
}

func subjectFor(n model.Notification) string {
	return fmt.Sprintf("[음력 기념일 알림] %s (%s)", n.Summary, n.TargetDate.Format("01/02"))
}

// buildMessage renders RFC 5322 headers plus a base64 HTML body.
func buildMessage(from string, to []string, n model.Notification, now time.Time) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.BEncoding.Encode("UTF-8", subjectFor(n)))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")

	encoded := base64.StdEncoding.EncodeToString([]byte(htmlBody(n.Body)))
	for len(encoded) > 76 {
		b.WriteString(encoded[:76])
		b.WriteString("\r\n")
		encoded = encoded[76:]
	}
	b.WriteString(encoded)
	b.WriteString("\r\n")
	return b.Bytes()
}

// htmlBody wraps the Telegram-HTML body in a small styled page. The body is
// already escaped; only newlines are converted.
func htmlBody(body string) string {
	return `<html>
  <body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="background-color: #f4f4f4; padding: 20px; border-radius: 10px;">
      <h2 style="color: #2c3e50;">📅 일정 알림</h2>
      <div style="background-color: #ffffff; padding: 15px; border-radius: 5px; border-left: 5px solid #007bff;">
        ` + strings.ReplaceAll(body, "\n", "<br>") + `
      </div>
      <p style="font-size: 0.8em; color: #777; margin-top: 20px;">lunaralarm에서 발송된 자동 메시지입니다.</p>
    </div>
  </body>
</html>
`
}
