package main

import (
	"io"

	"go.uber.org/zap"
)

// Deliver loads the user's credentials archive and mails it. With
// --dump-mail the rendered message goes to stdout instead.
func Deliver(config Config, logger *zap.Logger, stdout io.Writer) error {
	out, err := NewOutbound(config)
	if err != nil {
		return err
	}
	logger.Debug("loaded credentials archive",
		zap.String("path", out.AttachmentPath),
		zap.Int("bytes", len(out.Attachment)),
	)

	if config.dumpMail {
		_, err = out.WriteTo(stdout)
		return withExit(ExitOther, err)
	}

	err = send(config, out)
	if err != nil {
		return withExit(ExitSend, err)
	}
	logger.Info("sent VPN credentials",
		zap.String("vpn_user", config.VPNUser),
		zap.String("to", out.To),
		zap.String("server", config.Addr()),
		zap.String("message_id", out.MessageID),
	)
	return nil
}
