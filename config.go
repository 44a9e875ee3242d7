package main

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
)

const (
	DefaultConfigsDir = "download-configs"
	implicitTLSPort   = 465
	argCount          = 8
)

const usageText = `Usage: %s [options] HOST PORT USER PASSWORD TLS VPNUSER FROM TO

Mails download-configs/VPNUSER.zip to TO, from FROM, via the SMTP server at
HOST:PORT, authenticating as USER/PASSWORD. TLS is true or false.

Options:
`

// Config holds the configuration from the commandline
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	TLS      bool
	VPNUser  string
	From     string
	To       string

	ConfigsDir         string
	Timeout            time.Duration
	Helo               string
	InsecureSkipVerify bool
	TLSOnConnect       bool
	Verbose            bool
	LogLevel           string

	// Values we scan into, then process into what we want
	port     string
	tlsFlag  string
	dumpMail bool
}

func (config *Config) flagSet() *flag.FlagSet {
	fs := flag.NewFlagSet(AppName, flag.ContinueOnError)
	// Positional values such as passwords may start with '-'
	fs.SetInterspersed(false)
	fs.StringVar(&config.ConfigsDir, "configs-dir", DefaultConfigsDir, "Directory holding VPNUSER.zip")
	fs.DurationVar(&config.Timeout, "timeout", 30*time.Second, "Timeout after this long")
	fs.StringVar(&config.Helo, "helo", "", "Value to use for EHLO/HELO")
	fs.StringVar(&config.Helo, "ehlo", "", "Value to use for EHLO/HELO")
	fs.BoolVar(&config.TLSOnConnect, "tls-on-connect", false, "Use TLS from the start of the session on any port, not just 465")
	fs.BoolVar(&config.InsecureSkipVerify, "insecure-skip-verify", false, "Don't verify the server's TLS certificate")
	fs.BoolVarP(&config.Verbose, "verbose", "v", false, "Show the SMTP conversation")
	fs.BoolVar(&config.dumpMail, "dump-mail", false, "Dump the generated mail to stdout and exit")
	fs.StringVar(&config.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, usageText, AppName)
		fs.PrintDefaults()
	}
	return fs
}

// ParseArgs parses commandline arguments from args (e.g. os.Args[1:])
func (config *Config) ParseArgs(args []string) error {
	fs := config.flagSet()
	err := fs.Parse(args)
	if errors.Is(err, flag.ErrHelp) {
		return ExitError{exit: ExitOk}
	}
	if err != nil {
		return ExitError{
			err:  err,
			exit: ExitFlags,
		}
	}

	positional := fs.Args()
	if len(positional) != argCount {
		return Fatalf(ExitFlags, "expected %d arguments (HOST PORT USER PASSWORD TLS VPNUSER FROM TO), got %d", argCount, len(positional))
	}
	// Connection parameters may arrive with shell quoting left in; the
	// username and addresses are taken as given.
	config.Host = stripQuotes(positional[0])
	config.port = stripQuotes(positional[1])
	config.Username = stripQuotes(positional[2])
	config.Password = stripQuotes(positional[3])
	config.tlsFlag = stripQuotes(positional[4])
	config.VPNUser = positional[5]
	config.From = positional[6]
	config.To = positional[7]

	err = config.Normalize()
	if err != nil {
		return err
	}
	return config.Validate()
}

// Normalize fixes up a configuration by setting defaults etc.
func (config *Config) Normalize() error {
	var err error
	if config.port != "" {
		config.Port, err = strconv.Atoi(config.port)
		if err != nil || config.Port <= 0 || config.Port > 65535 {
			return Fatalf(ExitFlags, "invalid SMTP port: '%s'", config.port)
		}
	}

	config.TLS, err = parseTLSFlag(config.tlsFlag)
	if err != nil {
		return err
	}

	if config.ConfigsDir == "" {
		config.ConfigsDir = DefaultConfigsDir
	}

	if config.Helo == "" {
		host, err := os.Hostname()
		if err != nil {
			return Fatalf(ExitFlags, "failed to retrieve hostname for --helo: %w", err)
		}
		config.Helo = host
	}
	return nil
}

func (config *Config) Validate() error {
	if config.Host == "" {
		return Fatalf(ExitFlags, "an SMTP host must be given")
	}
	if config.Port == 0 {
		return Fatalf(ExitFlags, "an SMTP port must be given")
	}
	if config.VPNUser == "" {
		return Fatalf(ExitFlags, "a VPN username must be given")
	}
	return nil
}

// Addr is the host:port to connect to.
func (config Config) Addr() string {
	return net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
}

// ImplicitTLS reports whether the session is TLS from the first byte,
// rather than upgraded with STARTTLS.
func (config Config) ImplicitTLS() bool {
	return config.TLS && (config.TLSOnConnect || config.Port == implicitTLSPort)
}

func (config Config) tlsConfig() *tls.Config {
	return &tls.Config{
		ServerName:         config.Host,
		InsecureSkipVerify: config.InsecureSkipVerify, //nolint:gosec
	}
}

func stripQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, "")
}

func parseTLSFlag(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on", "tls", "starttls":
		return true, nil
	case "false", "0", "no", "off", "":
		return false, nil
	}
	return false, Fatalf(ExitFlags, "invalid TLS flag: '%s' (want true or false)", s)
}
