package main

import (
	"bytes"
	"io"
	"net/mail"
	"os"
	"path/filepath"
	"text/template"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

const Subject = "VPN Credentials"

var bodyTemplate = template.Must(template.New("body").Parse(
	`Hi {{ .Username }},<br><br>Your VPN credentials were created successfully, please see the attached zip with instructions.<br><br>Regards`))

// Outbound is the one message a run sends.
type Outbound struct {
	From           string
	To             string
	Subject        string
	Body           string
	MessageID      string
	AttachmentName string
	AttachmentPath string
	Attachment     []byte
}

// NewOutbound reads the user's credentials archive and builds the message
// around it. Nothing touches the network here, so a missing archive fails
// the run before any connection is made.
func NewOutbound(c Config) (*Outbound, error) {
	name := c.VPNUser + ".zip"
	path := filepath.Join(c.ConfigsDir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Fatalf(ExitAttachment, "failed to read credentials archive: %w", err)
	}

	var body bytes.Buffer
	err = bodyTemplate.Execute(&body, struct{ Username string }{c.VPNUser})
	if err != nil {
		return nil, Fatalf(ExitOther, "failed to execute template for body: %w", err)
	}

	host, err := os.Hostname()
	if err != nil {
		// :shrug:
		c.Messagef(HintWarn, "failed to find system hostname: %v", err)
		host = "hostname.failed.invalid"
	}

	return &Outbound{
		From:           c.From,
		To:             c.To,
		Subject:        Subject,
		Body:           body.String(),
		MessageID:      uuid.NewString() + "@" + host,
		AttachmentName: name,
		AttachmentPath: path,
		Attachment:     data,
	}, nil
}

// Message renders the outbound mail as a multipart/related message with the
// archive as an inline part.
func (o *Outbound) Message() *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", o.From)
	m.SetHeader("To", o.To)
	m.SetHeader("Subject", o.Subject)
	m.SetHeader("Message-Id", "<"+o.MessageID+">")
	m.SetHeader("X-Mailer", AppName+" v"+Version)
	m.SetBody("text/html", o.Body)
	m.Embed(o.AttachmentPath,
		gomail.Rename(o.AttachmentName),
		gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(o.Attachment)
			return err
		}),
	)
	return m
}

// WriteTo writes the rendered message, headers included.
func (o *Outbound) WriteTo(w io.Writer) (int64, error) {
	return o.Message().WriteTo(w)
}

// Envelope returns the SMTP envelope sender and recipient. Display names
// are dropped when the header value parses as an address.
func (o *Outbound) Envelope() (from, to string) {
	return envelopeAddress(o.From), envelopeAddress(o.To)
}

func envelopeAddress(s string) string {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return s
	}
	return addr.Address
}
