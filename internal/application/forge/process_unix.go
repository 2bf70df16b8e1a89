//go:build unix

package forge

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup 子进程独立成组，取消时连同孙进程一起终止
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
