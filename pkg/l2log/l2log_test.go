package l2log_test

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brindlenet/l2fabric/pkg/l2log"
)

func TestSetOutputCapturesLogLines(t *testing.T) {
	var buf bytes.Buffer
	l2log.SetOutput(&buf)
	defer l2log.SetOutput(os.Stderr)

	l2log.WithField("port", 0).Info("port up")
	assert.Contains(t, buf.String(), "port up")
}

func TestSetLevelRejectsUnknown(t *testing.T) {
	err := l2log.SetLevel("not-a-level")
	assert.Error(t, err)
}

func TestSetLevelAccepted(t *testing.T) {
	require.NoError(t, l2log.SetLevel("warn"))
	require.NoError(t, l2log.SetLevel("info"))
}
