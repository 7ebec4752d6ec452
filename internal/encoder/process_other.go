//go:build !linux

package encoder

import (
	"errors"
	"os"
	"os/exec"
)

func configure(*exec.Cmd) {}

func terminate(p *os.Process) error { return ignoreDone(p.Signal(os.Interrupt)) }
func kill(p *os.Process) error      { return ignoreDone(p.Kill()) }

func ignoreDone(err error) error {
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func exitSignal(*os.ProcessState) string { return "" }
