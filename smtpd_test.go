package main

import (
	"bufio"
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeSMTP is a minimal SMTP server on a random local port. It serves
// connections one at a time and records what clients sent. It only
// implements the commands the sender uses.
type fakeSMTP struct {
	ln   net.Listener
	host string
	port int

	tlsConfig   *tls.Config // nil: STARTTLS not offered
	implicitTLS bool
	authMech    string
	rejectAuth  bool
	stallData   bool
	done        chan struct{}

	mu            sync.Mutex
	connections   int
	startTLSCount int
	authAttempts  int
	authUser      string
	authPass      string
	usedTLS       bool
	from          string
	rcpts         []string
	data          []byte

	wg sync.WaitGroup
}

type fakeOption func(t *testing.T, s *fakeSMTP)

func withSTARTTLS() fakeOption {
	return func(t *testing.T, s *fakeSMTP) {
		s.tlsConfig = selfSignedTLS(t)
	}
}

// withImplicitTLS serves TLS from the first byte, as on port 465.
func withImplicitTLS() fakeOption {
	return func(t *testing.T, s *fakeSMTP) {
		s.tlsConfig = selfSignedTLS(t)
		s.implicitTLS = true
	}
}

// withAuthMech advertises and implements only mech (PLAIN, LOGIN or CRAM-MD5).
func withAuthMech(mech string) fakeOption {
	return func(_ *testing.T, s *fakeSMTP) {
		s.authMech = mech
	}
}

// withStalledData stops reading once DATA has been accepted.
func withStalledData() fakeOption {
	return func(_ *testing.T, s *fakeSMTP) {
		s.stallData = true
	}
}

func withRejectedAuth() fakeOption {
	return func(_ *testing.T, s *fakeSMTP) {
		s.rejectAuth = true
	}
}

func startFakeSMTP(t *testing.T, opts ...fakeOption) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "failed to listen")

	s := &fakeSMTP{
		ln:       ln,
		host:     "127.0.0.1",
		port:     ln.Addr().(*net.TCPAddr).Port,
		authMech: "PLAIN",
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(t, s)
	}
	if s.implicitTLS {
		s.ln = tls.NewListener(ln, s.tlsConfig)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.ln.Accept()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.connections++
			s.mu.Unlock()
			s.handle(conn)
		}
	}()
	t.Cleanup(func() {
		close(s.done)
		_ = ln.Close()
		s.wg.Wait()
	})
	return s
}

func (s *fakeSMTP) handle(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	r := bufio.NewReader(conn)
	reply := func(line string) {
		_, _ = fmt.Fprintf(conn, "%s\r\n", line)
	}
	tlsUp := s.implicitTLS
	if tlsUp {
		s.mu.Lock()
		s.usedTLS = true
		s.mu.Unlock()
	}

	reply("220 localhost fake ESMTP ready")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
		switch verb {
		case "EHLO":
			reply("250-localhost greets you")
			if s.tlsConfig != nil && !tlsUp {
				reply("250-STARTTLS")
			}
			reply("250-8BITMIME")
			reply("250 AUTH " + s.authMech)
		case "HELO":
			reply("250 localhost")
		case "STARTTLS":
			s.mu.Lock()
			s.startTLSCount++
			s.mu.Unlock()
			if s.tlsConfig == nil || tlsUp {
				reply("502 5.5.1 STARTTLS not available")
				continue
			}
			reply("220 2.0.0 Ready to start TLS")
			tconn := tls.Server(conn, s.tlsConfig)
			if err := tconn.Handshake(); err != nil {
				return
			}
			conn = tconn
			r = bufio.NewReader(conn)
			tlsUp = true
			s.mu.Lock()
			s.usedTLS = true
			s.mu.Unlock()
		case "AUTH":
			s.mu.Lock()
			s.authAttempts++
			s.mu.Unlock()
			user, pass, ok := s.authenticate(line, r, reply)
			if !ok {
				reply("501 5.5.2 Malformed authentication")
				continue
			}
			s.mu.Lock()
			s.authUser, s.authPass = user, pass
			s.mu.Unlock()
			if s.rejectAuth {
				reply("535 5.7.8 Authentication credentials invalid")
			} else {
				reply("235 2.7.0 Authentication successful")
			}
		case "MAIL":
			s.mu.Lock()
			s.from = angleAddr(line)
			s.mu.Unlock()
			reply("250 2.1.0 OK")
		case "RCPT":
			s.mu.Lock()
			s.rcpts = append(s.rcpts, angleAddr(line))
			s.mu.Unlock()
			reply("250 2.1.5 OK")
		case "DATA":
			reply("354 End data with <CR><LF>.<CR><LF>")
			if s.stallData {
				select {
				case <-s.done:
				case <-time.After(10 * time.Second):
				}
				return
			}
			var buf bytes.Buffer
			for {
				dline, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if dline == ".\r\n" {
					break
				}
				if strings.HasPrefix(dline, "..") {
					dline = dline[1:]
				}
				buf.WriteString(dline)
			}
			s.mu.Lock()
			s.data = buf.Bytes()
			s.mu.Unlock()
			reply("250 2.0.0 OK: queued as 12345")
		case "QUIT":
			reply("221 2.0.0 Bye")
			return
		default:
			reply("502 5.5.2 Command not recognized")
		}
	}
}

// authenticate runs the server side of an AUTH exchange for s.authMech.
// For CRAM-MD5 the password is only known when the client's digest matches
// the fake's expected password "pass".
func (s *fakeSMTP) authenticate(line string, r *bufio.Reader, reply func(string)) (user, pass string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 || !strings.EqualFold(fields[1], s.authMech) {
		return "", "", false
	}
	readB64 := func() (string, bool) {
		l, err := r.ReadString('\n')
		if err != nil {
			return "", false
		}
		raw, err := base64.StdEncoding.DecodeString(strings.TrimRight(l, "\r\n"))
		return string(raw), err == nil
	}
	b64 := base64.StdEncoding.EncodeToString

	switch strings.ToUpper(s.authMech) {
	case "PLAIN":
		if len(fields) != 3 {
			return "", "", false
		}
		raw, err := base64.StdEncoding.DecodeString(fields[2])
		if err != nil {
			return "", "", false
		}
		parts := strings.Split(string(raw), "\x00")
		if len(parts) != 3 {
			return "", "", false
		}
		return parts[1], parts[2], true
	case "LOGIN":
		reply("334 " + b64([]byte("Username:")))
		if user, ok = readB64(); !ok {
			return "", "", false
		}
		reply("334 " + b64([]byte("Password:")))
		if pass, ok = readB64(); !ok {
			return "", "", false
		}
		return user, pass, true
	case "CRAM-MD5":
		challenge := "<12345.67890@localhost>"
		reply("334 " + b64([]byte(challenge)))
		resp, ok := readB64()
		if !ok {
			return "", "", false
		}
		user, digest, found := strings.Cut(resp, " ")
		if !found {
			return "", "", false
		}
		mac := hmac.New(md5.New, []byte("pass"))
		mac.Write([]byte(challenge))
		if digest == hex.EncodeToString(mac.Sum(nil)) {
			pass = "pass"
		}
		return user, pass, true
	}
	return "", "", false
}

type fakeSnapshot struct {
	connections   int
	startTLSCount int
	authAttempts  int
	authUser      string
	authPass      string
	usedTLS       bool
	from          string
	rcpts         []string
	data          []byte
}

func (s *fakeSMTP) snapshot() fakeSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fakeSnapshot{
		connections:   s.connections,
		startTLSCount: s.startTLSCount,
		authAttempts:  s.authAttempts,
		authUser:      s.authUser,
		authPass:      s.authPass,
		usedTLS:       s.usedTLS,
		from:          s.from,
		rcpts:         append([]string(nil), s.rcpts...),
		data:          append([]byte(nil), s.data...),
	}
}

func angleAddr(line string) string {
	start := strings.Index(line, "<")
	end := strings.Index(line, ">")
	if start == -1 || end < start {
		return ""
	}
	return line[start+1 : end]
}

func selfSignedTLS(t *testing.T) *tls.Config {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:     []string{"localhost"},
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
	}
}
