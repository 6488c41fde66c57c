package testutil

import (
	"io"
	"os"
	"slices"

	"github.com/sirupsen/logrus"
)

// Tests log everything, but only print it under -v.
func init() {
	logrus.SetLevel(logrus.TraceLevel)
	if !slices.Contains(os.Args, "-test.v=true") {
		logrus.SetOutput(io.Discard)
	}
}

// DisableLogging discards standard logger output until the returned func is
// called.
func DisableLogging() (restore func()) {
	logger := logrus.StandardLogger()
	prev := logger.Out
	logger.SetOutput(io.Discard)
	return func() { logger.SetOutput(prev) }
}
