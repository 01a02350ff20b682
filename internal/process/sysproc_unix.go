//go:build !windows

package process

import (
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/mattn/go-shellwords"
	"golang.org/x/sys/unix"
)

// configureSysProc puts the child in its own process group so a timeout
// kill also reaches anything it spawned.
func configureSysProc(cmd *exec.Cmd, _ Descriptor) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

func shellCommand(line string) (string, []string) {
	return "/bin/sh", []string{"-c", line}
}

func splitArguments(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	return shellwords.Parse(s)
}

func quoteExecutable(path string) string {
	if path == "" || strings.ContainsAny(path, " \t'\"\\$`&|;<>()*?") {
		return "'" + strings.ReplaceAll(path, "'", `'\''`) + "'"
	}
	return path
}

// terminate sends SIGKILL to the process group, falling back to the
// process itself when the group is already gone.
func terminate(p *os.Process) error {
	if err := unix.Kill(-p.Pid, unix.SIGKILL); err == nil {
		return nil
	}
	return p.Kill()
}
