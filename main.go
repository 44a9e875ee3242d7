package main

import (
	"os"
)

const (
	AppName = "vpncredmail"
	Version = "0.1.0"
)

func main() {
	var c Config
	err := c.ParseArgs(os.Args[1:])
	if err != nil {
		Fatal(err)
	}

	logger, err := c.Logger()
	if err != nil {
		Fatal(err)
	}
	err = Deliver(c, logger, os.Stdout)
	_ = logger.Sync()
	if err != nil {
		Fatal(err)
	}
	Exit(ExitOk)
}
