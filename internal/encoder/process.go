package encoder

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// process is one spawned encoder. stdout and stderr share a single pipe so
// the order of lines is the order the child wrote them.
type process struct {
	log *zap.Logger
	cmd *exec.Cmd
	out *os.File

	// Closed after the process is reaped and its exit has been reported.
	done     chan struct{}
	stopOnce sync.Once
	stopping atomic.Bool
}

func startProcess(log *zap.Logger, argv []string) (*process, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty argv")
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create output pipe: %w", err)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = w
	cmd.Stderr = w
	configure(cmd)

	if err := cmd.Start(); err != nil {
		_ = r.Close()
		_ = w.Close()
		return nil, err
	}
	// The child holds its own copy; ours must go or the reader never sees EOF.
	_ = w.Close()

	pid := cmd.Process.Pid
	log.Info("process started", zap.Int("cmd_pid", pid))

	return &process{
		log:  log.With(zap.Int("cmd_pid", pid)),
		cmd:  cmd,
		out:  r,
		done: make(chan struct{}),
	}, nil
}

func (p *process) pid() int { return p.cmd.Process.Pid }

// forward calls fn for every non-empty output line until the child closes its
// end of the pipe. ffmpeg redraws progress with a bare carriage return, so
// both \r and \n end a line.
func (p *process) forward(fn func(line string)) {
	defer p.out.Close()

	sc := bufio.NewScanner(p.out)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	sc.Split(scanLines)

	for sc.Scan() {
		line := bytes.TrimRight(sc.Bytes(), " \t")
		if len(line) == 0 {
			continue
		}
		fn(string(line))
	}

	if err := sc.Err(); err != nil {
		p.log.Error("output scanner failure; discarding remaining output", zap.Error(err))
		// Keep draining so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, p.out)
	}
}

func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// wait reaps the child. code is -1 when the child did not exit normally.
func (p *process) wait() (code int, signal string, err error) {
	err = p.cmd.Wait()
	if err == nil {
		p.log.Info("process exited cleanly")
		return 0, "", nil
	}

	var eerr *exec.ExitError
	if errors.As(err, &eerr) {
		code = eerr.ExitCode()
		signal = exitSignal(eerr.ProcessState)
		p.log.Info("process exited with error status",
			zap.Int("exit_code", code),
			zap.String("signal", signal))
		return code, signal, err
	}

	p.log.Error("failed to wait for process", zap.Error(err))
	return -1, "", err
}

// stop sends SIGTERM to the process group and escalates to SIGKILL after
// grace. It returns immediately; done reports completion. stop is idempotent.
func (p *process) stop(grace time.Duration) {
	p.stopOnce.Do(func() {
		p.stopping.Store(true)
		go func() {
			select {
			case <-p.done:
				return
			default:
			}

			if err := terminate(p.cmd.Process); err != nil {
				p.log.Warn("SIGTERM failed", zap.Error(err))
			} else {
				p.log.Info("SIGTERM sent")
			}

			timer := time.NewTimer(grace)
			defer timer.Stop()

			select {
			case <-p.done:
				return
			case <-timer.C:
				p.log.Warn("grace timeout expired; sending SIGKILL", zap.Duration("grace", grace))
				if err := kill(p.cmd.Process); err != nil {
					p.log.Error("SIGKILL failed", zap.Error(err))
				}
			}
		}()
	})
}
