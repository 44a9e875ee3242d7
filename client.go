package main

import (
	"bytes"
	"crypto/tls"
	"encoding/base64"
	"io"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"
)

type Client struct {
	config     Config
	Text       *textproto.Conn
	remoteHost string
	conn       net.Conn
	tls        bool
	didHello   bool
	helloError error
	ext        map[string]string // supported extensions
	auth       []string          // authentication types
}

// Dial connects to the configured server, with TLS from the start when the
// configuration calls for implicit TLS.
func Dial(config Config) (net.Conn, error) {
	addr := config.Addr()
	config.Messagef(HintInfo, "Trying %s...", addr)
	dialer := &net.Dialer{Timeout: config.Timeout}
	var conn net.Conn
	var err error
	if config.ImplicitTLS() {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, config.tlsConfig())
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		config.Messagef(HintWarn, "Failed to connect to %s: %v", addr, err)
	}
	return conn, err
}

func NewClient(config Config, conn net.Conn, host string) (*Client, error) {
	config.Messagef(HintInfo, "Connected to %s.", host)
	c := &Client{
		config:     config,
		remoteHost: host,
	}
	c.setConn(conn)
	_ = c.conn.SetDeadline(time.Now().Add(c.config.Timeout))
	defer func(conn net.Conn, t time.Time) {
		_ = conn.SetDeadline(t)
	}(c.conn, time.Time{})

	_, _, err := c.ReadResponse(220)
	if err != nil {
		return c, err
	}
	return c, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	err := c.Text.Close()
	if err == nil {
		c.Message(HintInfo, "Connection closed with remote host.")
	}
	return err
}

func (c *Client) ReadResponse(expectCode int) (int, string, error) {
	return c.Text.ReadResponse(expectCode)
}

func (c *Client) setConn(conn net.Conn) {
	c.conn = conn
	var r = io.TeeReader(conn, &recvWriter{c: c})
	var w io.Writer = conn

	rwc := struct {
		io.Reader
		io.Writer
		io.Closer
	}{
		Reader: r,
		Writer: w,
		Closer: conn,
	}
	c.Text = textproto.NewConn(rwc)
	_, c.tls = conn.(*tls.Conn)
}

type recvWriter struct {
	c    *Client
	buff string
}

func (w *recvWriter) Write(b []byte) (int, error) {
	length := len(b)
	lines := bytes.SplitAfter(b, []byte("\n"))
	for _, line := range lines {
		if bytes.HasSuffix(line, []byte("\n")) {
			s := w.buff + string(line[:len(line)-1])
			w.buff = ""
			w.c.Message(HintRecv, strings.TrimSuffix(s, "\r"))
		} else {
			w.buff += string(line)
		}
	}
	return length, nil
}

// hello runs EHLO or HELO, if needed
func (c *Client) hello() error {
	if c.didHello {
		return c.helloError
	}
	c.didHello = true
	err := c.ehlo()
	if err == nil {
		return nil
	}
	c.helloError = c.helo()
	return c.helloError
}

// helper to send a command
func (c *Client) cmd(expectCode int, format string, args ...interface{}) (int, string, error) {
	return c.cmdShown(expectCode, "", format, args...)
}

// cmdShown sends a command, showing shown in the transcript in place of
// the command itself when it is non-empty.
func (c *Client) cmdShown(expectCode int, shown string, format string, args ...interface{}) (int, string, error) {
	if shown != "" {
		c.Message(HintSend, shown)
	} else {
		c.Messagef(HintSend, format, args...)
	}

	_ = c.conn.SetDeadline(time.Now().Add(c.config.Timeout))
	defer c.conn.SetDeadline(time.Time{})

	id, err := c.Text.Cmd(format, args...)
	if err != nil {
		return 0, "", err
	}

	c.Text.StartResponse(id)
	defer c.Text.EndResponse(id)
	return c.ReadResponse(expectCode)
}

// helo sends the HELO greeting to the server. It should be used only when the
// server does not support ehlo.
func (c *Client) helo() error {
	c.ext = nil
	_, _, err := c.cmd(250, "HELO %s", c.config.Helo)
	return err
}

// ehlo sends the EHLO (extended hello) greeting to the server. It
// should be the preferred greeting for servers that support it.
func (c *Client) ehlo() error {
	_, msg, err := c.cmd(250, "EHLO %s", c.config.Helo)
	if err != nil {
		return err
	}
	c.auth = nil
	ext := make(map[string]string)
	extList := strings.Split(msg, "\n")
	if len(extList) > 1 {
		extList = extList[1:]
		for _, line := range extList {
			args := strings.SplitN(line, " ", 2)
			if len(args) > 1 {
				ext[strings.ToUpper(args[0])] = args[1]
			} else {
				ext[strings.ToUpper(args[0])] = ""
			}
		}
	}
	if mechs, ok := ext["AUTH"]; ok {
		c.auth = strings.Fields(strings.ToUpper(mechs))
	}
	c.ext = ext
	return err
}

// Extension reports whether an extension is supported by the server.
func (c *Client) Extension(ext string) bool {
	if err := c.hello(); err != nil {
		return false
	}
	_, ok := c.ext[strings.ToUpper(ext)]
	return ok
}

// StartTLS sends the STARTTLS command and encrypts all further communication.
// Only servers that advertise the STARTTLS extension support this function.
//
// A nil config is equivalent to a zero tls.Config.
func (c *Client) StartTLS(config *tls.Config) error {
	if err := c.hello(); err != nil {
		return err
	}
	_, _, err := c.cmd(220, "STARTTLS")
	if err != nil {
		return err
	}
	if config == nil {
		config = &tls.Config{}
	}
	if config.ServerName == "" {
		// Make a copy to avoid polluting argument
		config = config.Clone()
		config.ServerName = c.remoteHost
	}
	tlsConn := tls.Client(c.conn, config)
	_ = tlsConn.SetDeadline(time.Now().Add(c.config.Timeout))
	if err = tlsConn.Handshake(); err != nil {
		return err
	}
	_ = tlsConn.SetDeadline(time.Time{})
	c.setConn(tlsConn)
	c.Message(HintInfo, "TLS started.")
	return c.ehlo()
}

// Auth authenticates a client using the provided authentication mechanism.
// A failed authentication closes the connection.
//
// The credentials are never shown in the transcript.
func (c *Client) Auth(a smtp.Auth) error {
	if err := c.hello(); err != nil {
		return err
	}
	encoding := base64.StdEncoding
	mech, resp, err := a.Start(&smtp.ServerInfo{Name: c.remoteHost, TLS: c.tls, Auth: c.auth})
	if err != nil {
		_ = c.Quit()
		return err
	}
	resp64 := make([]byte, encoding.EncodedLen(len(resp)))
	encoding.Encode(resp64, resp)
	code, msg64, err := c.cmdShown(0, "AUTH "+mech+" ****", "%s", strings.TrimSpace("AUTH "+mech+" "+string(resp64)))
	for err == nil {
		var msg []byte
		switch code {
		case 334:
			msg, err = encoding.DecodeString(msg64)
		case 235:
			// the last message isn't base64 because it isn't a challenge
			msg = []byte(msg64)
		default:
			err = &textproto.Error{Code: code, Msg: msg64}
		}
		if err == nil {
			resp, err = a.Next(msg, code == 334)
		}
		if err != nil {
			// abort the AUTH
			_, _, _ = c.cmd(501, "*")
			_ = c.Quit()
			break
		}
		if resp == nil {
			break
		}
		resp64 = make([]byte, encoding.EncodedLen(len(resp)))
		encoding.Encode(resp64, resp)
		code, msg64, err = c.cmdShown(0, "****", "%s", resp64)
	}
	return err
}

// Mail issues a MAIL command to the server using the provided email address.
// If the server supports the 8BITMIME extension, Mail adds the BODY=8BITMIME
// parameter.
// This initiates a mail transaction and is followed by one or more Rcpt calls.
func (c *Client) Mail(from string) error {
	if err := c.hello(); err != nil {
		return err
	}
	cmdStr := "MAIL FROM:<%s>"
	if _, ok := c.ext["8BITMIME"]; ok {
		cmdStr += " BODY=8BITMIME"
	}
	_, _, err := c.cmd(250, cmdStr, from)
	return err
}

// Rcpt issues a RCPT command to the server using the provided email address.
// A call to Rcpt must be preceded by a call to Mail and may be followed by
// a Data call or another Rcpt call.
func (c *Client) Rcpt(to string) error {
	_, _, err := c.cmd(25, "RCPT TO:<%s>", to)
	return err
}

type dataCloser struct {
	c *Client
	io.WriteCloser
}

func (d *dataCloser) Close() error {
	if err := d.WriteCloser.Close(); err != nil {
		return err
	}

	_ = d.c.conn.SetDeadline(time.Now().Add(d.c.config.Timeout))
	defer d.c.conn.SetDeadline(time.Time{})

	_, _, err := d.c.Text.ReadResponse(250)
	return err
}

// Data issues a DATA command to the server and returns a writer that
// can be used to write the mail headers and body. The caller should
// close the writer before calling any more methods on c. A call to
// Data must be preceded by one or more calls to Rcpt.
func (c *Client) Data() (io.WriteCloser, error) {
	_, _, err := c.cmd(354, "DATA")
	if err != nil {
		return nil, err
	}
	_ = c.conn.SetDeadline(time.Now().Add(c.config.Timeout))
	return &dataCloser{c, c.Text.DotWriter()}, nil
}

// Quit sends the QUIT command and closes the connection to the server.
//
// If Quit fails the connection is not closed, Close should be used
// in this case.
func (c *Client) Quit() error {
	if err := c.hello(); err != nil {
		return err
	}
	_, _, err := c.cmd(221, "QUIT")
	if err != nil {
		return err
	}
	return c.Text.Close()
}
