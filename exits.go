package main

import (
	"errors"
	"fmt"
	"os"
)

type ExitCode int

const (
	ExitOk         ExitCode = 0
	ExitFlags      ExitCode = 1
	ExitAttachment ExitCode = 2
	ExitSend       ExitCode = 3
	ExitOther      ExitCode = 100
)

type ExitError struct {
	err  error
	exit ExitCode
}

func (e ExitError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e ExitError) Unwrap() error {
	return e.err
}

// Code is the process exit status for this error.
func (e ExitError) Code() ExitCode {
	return e.exit
}

func Exit(code ExitCode) {
	os.Exit(int(code))
}

func Fatalf(code ExitCode, msg string, args ...interface{}) error {
	return ExitError{
		err:  fmt.Errorf(msg, args...),
		exit: code,
	}
}

// withExit classifies err under code unless it already carries one.
func withExit(code ExitCode, err error) error {
	if err == nil {
		return nil
	}
	var ex ExitError
	if errors.As(err, &ex) {
		return err
	}
	return ExitError{err: err, exit: code}
}
