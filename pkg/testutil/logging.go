package testutil

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Importing this package silences logrus unless tests run verbosely.
func init() {
	var isVerbose bool
	for _, arg := range os.Args {
		if arg == "-test.v=true" || arg == "-test.v" {
			isVerbose = true
		}
	}

	logrus.SetLevel(logrus.TraceLevel)

	if !isVerbose {
		logrus.StandardLogger().Out = io.Discard
	}
}

// DisableLogging discards log output until the returned func is called.
func DisableLogging() (reset func()) {
	originalLogOutput := logrus.StandardLogger().Out
	logrus.StandardLogger().Out = io.Discard
	return func() {
		logrus.StandardLogger().Out = originalLogOutput
	}
}
