package testutils

import (
	"io"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
)

// TestHelper bundles the owning testing.T with a debug-level logger the
// code under test can be handed.
type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper returns a helper whose logger records everything down to
// debug level. The output goes nowhere in a quiet run and to stderr
// under -v, so scan and session traces show up exactly when someone is
// looking for them.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	if testing.Verbose() {
		logger.SetOutput(os.Stderr)
	} else {
		logger.SetOutput(io.Discard)
	}
	return &TestHelper{T: t, Logger: logger}
}
