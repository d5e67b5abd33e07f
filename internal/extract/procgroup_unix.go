//go:build unix

package extract

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"
)

func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// terminateGroup signals the whole group so muxer children spawned by the
// extractor die with it.
func terminateGroup(p *os.Process, grace time.Duration) error {
	if p == nil {
		return nil
	}
	pid := p.Pid
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		_ = p.Signal(syscall.SIGTERM)
	}
	time.AfterFunc(grace, func() {
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	})
	return nil
}
