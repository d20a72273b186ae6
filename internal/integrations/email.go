package integrations

import (
	"bytes"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"
)

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// EmailSender delivers mail over implicit TLS, port 465 style.
type EmailSender struct {
	cfg SMTPConfig
}

func NewEmailSender(cfg SMTPConfig) *EmailSender {
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &EmailSender{cfg: cfg}
}

// Send delivers an HTML message. A non-empty attachment is added as an
// inline PNG, which is how purchase confirmations carry their QR code.
func (e *EmailSender) Send(to, subject, htmlBody string, attachment []byte, filename string) error {
	msg, err := buildMessage(e.cfg.From, to, subject, htmlBody, attachment, filename)
	if err != nil {
		return err
	}

	serverAddr := e.cfg.Host + ":" + e.cfg.Port
	tlsConfig := &tls.Config{ServerName: e.cfg.Host}

	conn, err := tls.Dial("tcp", serverAddr, tlsConfig)
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, e.cfg.Host)
	if err != nil {
		return err
	}
	defer client.Quit()

	auth := smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return err
	}

	if err := client.Mail(e.cfg.From); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	return w.Close()
}

func buildMessage(from, to, subject, htmlBody string, attachment []byte, filename string) ([]byte, error) {
	var buf bytes.Buffer
	if len(attachment) == 0 {
		buf.WriteString(fmt.Sprintf("From: %s\r\n", from))
		buf.WriteString(fmt.Sprintf("To: %s\r\n", to))
		buf.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
		buf.WriteString("MIME-Version: 1.0\r\n")
		buf.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
		buf.WriteString("\r\n")
		buf.WriteString(htmlBody)
		return buf.Bytes(), nil
	}

	writer := multipart.NewWriter(&buf)
	var head bytes.Buffer
	head.WriteString(fmt.Sprintf("From: %s\r\n", from))
	head.WriteString(fmt.Sprintf("To: %s\r\n", to))
	head.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	head.WriteString("MIME-Version: 1.0\r\n")
	head.WriteString(fmt.Sprintf("Content-Type: multipart/mixed; boundary=%q\r\n", writer.Boundary()))
	head.WriteString("\r\n")

	bodyHeader := textproto.MIMEHeader{}
	bodyHeader.Set("Content-Type", "text/html; charset=\"utf-8\"")
	bodyPart, err := writer.CreatePart(bodyHeader)
	if err != nil {
		return nil, err
	}
	if _, err := bodyPart.Write([]byte(htmlBody)); err != nil {
		return nil, err
	}

	attachHeader := textproto.MIMEHeader{}
	attachHeader.Set("Content-Type", "image/png")
	attachHeader.Set("Content-Transfer-Encoding", "base64")
	attachHeader.Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	attachPart, err := writer.CreatePart(attachHeader)
	if err != nil {
		return nil, err
	}
	encoded := base64.StdEncoding.EncodeToString(attachment)
	for len(encoded) > 0 {
		n := 76
		if len(encoded) < n {
			n = len(encoded)
		}
		if _, err := attachPart.Write([]byte(encoded[:n] + "\r\n")); err != nil {
			return nil, err
		}
		encoded = encoded[n:]
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	return append(head.Bytes(), buf.Bytes()...), nil
}

// PurchaseEmailBody renders the confirmation message.
func PurchaseEmailBody(firstName, purchaseID, visitDate, total, currency string) string {
	name := strings.TrimSpace(firstName)
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf(`<html><body>
<p>Hi %s,</p>
<p>Thanks for your purchase! Your order <b>%s</b> is confirmed for <b>%s</b>.</p>
<p>Total charged: <b>%s %s</b></p>
<p>The attached QR code is your entry ticket. Show it at the gate.</p>
<p>See you at the park!</p>
</body></html>`, name, purchaseID, visitDate, total, strings.ToUpper(currency))
}
