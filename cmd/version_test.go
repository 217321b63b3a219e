package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionRun(t *testing.T) {
	testEnv(t)
	var buf bytes.Buffer
	ui.Out = &buf

	origVersion := buildVersion
	buildVersion = "1.2.3"
	t.Cleanup(func() { buildVersion = origVersion })

	require.NoError(t, versionRun())
	assert.Contains(t, buf.String(), "ka 1.2.3")
}
