//go:build !windows

package daemon

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFile_Stop_TerminatesProcess(t *testing.T) {
	child := exec.Command("sleep", "30")
	require.NoError(t, child.Start())
	done := make(chan struct{})
	go func() {
		_ = child.Wait()
		close(done)
	}()
	t.Cleanup(func() { _ = child.Process.Kill() })

	path := filepath.Join(t.TempDir(), "child.pid")
	pf := NewPIDFile(path)
	require.NoError(t, pf.WritePID(child.Process.Pid))

	require.NoError(t, pf.Stop(3*time.Second))

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("child did not exit")
	}
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
