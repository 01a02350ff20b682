package process

import (
	"fmt"
	"os/exec"
	"strings"
)

// Command creates an exec.Cmd for the descriptor.
// Standard streams are left unset; the engine wires them.
func (d Descriptor) Command() (*exec.Cmd, error) {
	var cmd *exec.Cmd

	if d.UseShell {
		name, args := shellCommand(d.CommandLine())
		cmd = exec.Command(name, args...)
	} else {
		args, err := splitArguments(d.Arguments)
		if err != nil {
			return nil, fmt.Errorf("parse arguments %q: %w", d.Arguments, err)
		}
		cmd = exec.Command(d.Executable, args...)
	}

	cmd.Dir = d.WorkingDir
	configureSysProc(cmd, d)
	return cmd, nil
}

// CommandLine returns the full command line (for shells, logs and -print-cmd).
func (d Descriptor) CommandLine() string {
	line := quoteExecutable(d.Executable)
	if args := strings.TrimSpace(d.Arguments); args != "" {
		line += " " + args
	}
	return line
}
