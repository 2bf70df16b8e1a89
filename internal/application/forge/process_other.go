//go:build !unix

package forge

import "os/exec"

func configureProcessGroup(cmd *exec.Cmd) {}
