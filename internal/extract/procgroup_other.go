//go:build !unix

package extract

import (
	"os"
	"os/exec"
	"time"
)

func setProcessGroup(_ *exec.Cmd) {}

func terminateGroup(p *os.Process, _ time.Duration) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}
