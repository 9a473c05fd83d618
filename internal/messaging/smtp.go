package messaging

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPGateway sends plain-text mail. Dialing honours the context deadline.
type SMTPGateway struct {
	cfg    SMTPConfig
	dialer net.Dialer
}

func NewSMTPGateway(cfg SMTPConfig) *SMTPGateway {
	return &SMTPGateway{cfg: cfg, dialer: net.Dialer{Timeout: 30 * time.Second}}
}

func (g *SMTPGateway) Send(ctx context.Context, recipient string, msg Message) (Result, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" || !strings.Contains(recipient, "@") {
		return Rejected("invalid_recipient", true), nil
	}

	addr := net.JoinHostPort(g.cfg.Host, strconv.Itoa(g.cfg.Port))
	conn, err := g.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Result{}, fmt.Errorf("smtp dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, g.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return Result{}, fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(tlsConfig(g.cfg.Host)); err != nil {
			return Result{}, fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if g.cfg.Username != "" {
		auth := smtp.PlainAuth("", g.cfg.Username, g.cfg.Password, g.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return classifySMTP(err)
		}
	}

	if err := client.Mail(g.cfg.From); err != nil {
		return classifySMTP(err)
	}
	if err := client.Rcpt(recipient); err != nil {
		return classifySMTP(err)
	}
	w, err := client.Data()
	if err != nil {
		return classifySMTP(err)
	}
	if _, err := w.Write(buildMessage(g.cfg.From, recipient, msg)); err != nil {
		return Result{}, fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return classifySMTP(err)
	}
	_ = client.Quit()
	return Delivered(), nil
}

func buildMessage(from, to string, msg Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + sanitizeHeader(msg.Subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

// classifySMTP turns a server reply into a rejection. 5xx replies are
// permanent, 4xx replies are worth retrying.
func classifySMTP(err error) (Result, error) {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		code := "smtp_" + strconv.Itoa(protoErr.Code)
		return Rejected(code, protoErr.Code >= 500), nil
	}
	return Result{}, err
}
