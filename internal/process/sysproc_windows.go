//go:build windows

package process

import (
	"os"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/windows"
)

// configureSysProc passes the command line through untouched, since
// Windows programs parse their own arguments.
func configureSysProc(cmd *exec.Cmd, d Descriptor) {
	attr := &syscall.SysProcAttr{}
	if d.CreateNoWindow {
		attr.HideWindow = true
		attr.CreationFlags |= windows.CREATE_NO_WINDOW
	}

	if d.UseShell {
		attr.CmdLine = "cmd.exe /C " + d.CommandLine()
	} else {
		attr.CmdLine = d.CommandLine()
	}
	cmd.SysProcAttr = attr
}

func shellCommand(line string) (string, []string) {
	return "cmd.exe", []string{"/C", line}
}

// splitArguments is informational on Windows: SysProcAttr.CmdLine wins.
func splitArguments(s string) ([]string, error) {
	return strings.Fields(s), nil
}

func quoteExecutable(path string) string {
	if path == "" || strings.ContainsAny(path, " \t") {
		return `"` + path + `"`
	}
	return path
}

func terminate(p *os.Process) error {
	return p.Kill()
}
