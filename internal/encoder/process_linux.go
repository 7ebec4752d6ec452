//go:build linux

package encoder

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// configure isolates the child into its own process group and makes the
// kernel kill it if the server dies first.
func configure(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}

// terminate and kill signal the child's process group, never anything else.
// A group that is already gone is not an error.
func terminate(p *os.Process) error { return signalGroup(p.Pid, syscall.SIGTERM) }
func kill(p *os.Process) error      { return signalGroup(p.Pid, syscall.SIGKILL) }

func signalGroup(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return errors.New("invalid pid")
	}
	if err := syscall.Kill(-pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}

func exitSignal(state *os.ProcessState) string {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ws.Signal().String()
	}
	return ""
}
