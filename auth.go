package main

import (
	"bytes"
	"errors"
	"fmt"
	"net/smtp"
)

// pickAuth chooses an authentication mechanism from those the server
// advertised in its EHLO response.
func pickAuth(config Config, advertised []string) (smtp.Auth, error) {
	has := func(mech string) bool {
		for _, m := range advertised {
			if m == mech {
				return true
			}
		}
		return false
	}
	switch {
	case len(advertised) == 0:
		return nil, errors.New("smtp: server doesn't support AUTH")
	case has("PLAIN"):
		return &plainAuth{
			username: config.Username,
			password: config.Password,
			host:     config.Host,
		}, nil
	case has("LOGIN"):
		return &loginAuth{
			username: config.Username,
			password: config.Password,
			host:     config.Host,
		}, nil
	case has("CRAM-MD5"):
		return smtp.CRAMMD5Auth(config.Username, config.Password), nil
	}
	return nil, fmt.Errorf("smtp: no supported AUTH mechanism in %v", advertised)
}

// plainAuth implements PLAIN. Unlike smtp.PlainAuth it sends the
// credentials on a plaintext session too; sendTo warns when it does.
type plainAuth struct {
	username string
	password string
	host     string
}

func (a *plainAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	if server.Name != a.host {
		return "", nil, errors.New("smtp: wrong host name")
	}
	resp := []byte("\x00" + a.username + "\x00" + a.password)
	return "PLAIN", resp, nil
}

func (a *plainAuth) Next(_ []byte, more bool) ([]byte, error) {
	if more {
		return nil, errors.New("smtp: unexpected server challenge")
	}
	return nil, nil
}

// loginAuth implements the LOGIN mechanism, which net/smtp lacks.
type loginAuth struct {
	username string
	password string
	host     string
}

func (a *loginAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	if server.Name != a.host {
		return "", nil, errors.New("smtp: wrong host name")
	}
	return "LOGIN", nil, nil
}

func (a *loginAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if !more {
		return nil, nil
	}
	switch {
	case bytes.EqualFold(fromServer, []byte("Username:")):
		return []byte(a.username), nil
	case bytes.EqualFold(fromServer, []byte("Password:")):
		return []byte(a.password), nil
	}
	return nil, fmt.Errorf("smtp: unexpected server challenge: %q", fromServer)
}
