package main

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/fatih/color"
)

type Hint int

const (
	HintInfo Hint = iota
	HintWarn
	HintError
	HintSend
	HintSendTls
	HintRecv
	HintRecvTls
	HintAccept
	HintReject
	HintDefer
)

type Style struct {
	Tag   string
	Color *color.Color
}

var theme = []struct {
	hint  Hint
	tag   string
	color color.Attribute
}{
	{HintInfo, "===", color.FgWhite},
	{HintWarn, "+++", color.FgHiYellow},
	{HintError, "***", color.FgHiRed},
	{HintSend, " ->", color.FgCyan},
	{HintSendTls, " ~>", color.FgCyan},
	{HintRecv, "<- ", color.FgBlue},
	{HintRecvTls, "<~ ", color.FgBlue},
	{HintAccept, "<- ", color.FgGreen},
	{HintReject, "<- ", color.FgRed},
	{HintDefer, "<- ", color.FgYellow},
}

var styles = func() map[Hint]Style {
	m := make(map[Hint]Style, len(theme))
	for _, t := range theme {
		m[t.hint] = Style{
			Tag:   t.tag,
			Color: color.New(t.color),
		}
	}
	return m
}()

var errorColor = color.New(color.FgHiRed)

func Error(err error) {
	if msg := err.Error(); msg != "" {
		_, _ = errorColor.Fprintf(color.Error, "%s\n", msg)
	}
}

func Fatal(err error) {
	if err != nil {
		Error(err)
	}
	var ex ExitError
	if errors.As(err, &ex) {
		Exit(ex.exit)
	}
	Exit(ExitOther)
}

var lineEndRE = regexp.MustCompile(`\r?\n`)

var acceptRe = regexp.MustCompile(`^[0-36-9][0-9]{2}`)
var deferRe = regexp.MustCompile(`^4[0-9]{2}`)
var rejectRe = regexp.MustCompile(`^5[0-9]{2}`)

func (c *Client) Message(hint Hint, msg string) {
	if c.tls {
		switch hint {
		case HintSend:
			hint = HintSendTls
		case HintRecv:
			hint = HintRecvTls
		}
	}
	c.config.Message(hint, msg)
}

// Message prints one transcript entry. Only warnings and errors are shown
// unless --verbose was given.
func (config Config) Message(hint Hint, msg string) {
	if !config.Verbose && hint != HintWarn && hint != HintError {
		return
	}

	// Keep stdout clean for --dump-mail.
	out := color.Output
	if hint == HintWarn || hint == HintError {
		out = color.Error
	}

	t := styles[hint]
	lines := lineEndRE.Split(msg, -1)
	for _, line := range lines {
		textColor := t.Color
		if hint == HintRecv || hint == HintRecvTls {
			switch {
			case acceptRe.MatchString(line):
				textColor = styles[HintAccept].Color
			case deferRe.MatchString(line):
				textColor = styles[HintDefer].Color
			case rejectRe.MatchString(line):
				textColor = styles[HintReject].Color
			}
		}
		_, _ = textColor.Fprintf(out, "%s %s\n", t.Tag, line)
	}
}

func (c *Client) Messagef(hint Hint, msg string, args ...interface{}) {
	c.Message(hint, fmt.Sprintf(msg, args...))
}

func (config Config) Messagef(hint Hint, msg string, args ...interface{}) {
	config.Message(hint, fmt.Sprintf(msg, args...))
}
