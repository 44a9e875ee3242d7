package main

import (
	"fmt"
)

// send delivers the message in a single SMTP session. There is exactly one
// attempt; any failure is returned to the caller.
func send(config Config, out *Outbound) error {
	conn, err := Dial(config)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", config.Addr(), err)
	}
	client, err := NewClient(config, conn, config.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("greeting from %s: %w", config.Addr(), err)
	}
	return sendTo(config, client, out)
}

func sendTo(config Config, c *Client, out *Outbound) error {
	defer c.Close()

	if err := c.hello(); err != nil {
		return fmt.Errorf("EHLO: %w", err)
	}

	if config.TLS && !c.tls {
		if !c.Extension("STARTTLS") {
			return fmt.Errorf("smtp: %s doesn't support STARTTLS", config.Addr())
		}
		if err := c.StartTLS(config.tlsConfig()); err != nil {
			return fmt.Errorf("STARTTLS: %w", err)
		}
	}

	if config.Username != "" {
		auth, err := pickAuth(config, c.auth)
		if err != nil {
			return err
		}
		if !c.tls {
			c.Messagef(HintWarn, "Sending credentials for %s to %s without TLS", config.Username, config.Addr())
		}
		if err = c.Auth(auth); err != nil {
			return fmt.Errorf("AUTH: %w", err)
		}
	}

	from, to := out.Envelope()
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	n, err := out.WriteTo(w)
	if err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	c.Messagef(HintSend, "[%d bytes of message data]", n)
	if err = w.Close(); err != nil {
		return fmt.Errorf("end of DATA: %w", err)
	}

	if err = c.Quit(); err != nil {
		// The message was accepted; a failed QUIT doesn't change that.
		c.Messagef(HintWarn, "QUIT failed: %v", err)
	}
	return nil
}
