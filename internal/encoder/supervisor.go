// Package encoder runs and supervises one ffmpeg child process per streaming
// session.
package encoder

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/edirooss/livepush/internal/apperr"
	"github.com/edirooss/livepush/internal/domain/logevent"
	"github.com/edirooss/livepush/pkg/ffmpegcmd"
)

const (
	DefaultStopGrace     = 5 * time.Second
	DefaultMaxConcurrent = 1
)

// Sink receives encoder output and lifecycle events.
type Sink interface {
	Append(ctx context.Context, ev logevent.LogEvent) *logevent.LogEvent
}

// Job is everything needed to push one video to one ingest endpoint.
type Job struct {
	SessionID         string
	VideoRef          string
	IngestKey         string
	IngestBase        string // overrides Options.IngestBase when set
	IngestURLOverride string
	ShortsMode        bool
	ChannelName       string

	// OnExit runs on the job's worker goroutine after the final event has
	// been recorded and before the handle is released.
	OnExit func(Exit)
}

// Exit describes how an encoder ended. Err is an *apperr.EncoderRuntimeError
// for any ending other than a clean exit or an operator stop.
type Exit struct {
	SessionID string
	ExitCode  int
	Signal    string
	Stopped   bool
	Err       error
}

// Handle identifies a running encoder.
type Handle struct {
	SessionID string
	PID       int
	Argv      []string
	StartedAt time.Time

	done <-chan struct{}
}

// Done is closed once the encoder has been reaped and released.
func (h *Handle) Done() <-chan struct{} { return h.done }

type Options struct {
	Binary        string
	IngestBase    string
	StopGrace     time.Duration
	MaxConcurrent int
}

type Supervisor struct {
	log  *zap.Logger
	sink Sink
	opts Options
	pool *slotPool

	lookPath func(string) (string, error)
	now      func() time.Time

	mu      sync.Mutex
	running map[string]*process
}

func New(log *zap.Logger, sink Sink, opts Options) *Supervisor {
	if opts.Binary == "" {
		opts.Binary = ffmpegcmd.DefaultBinary
	}
	if opts.IngestBase == "" {
		opts.IngestBase = ffmpegcmd.DefaultIngestBase
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = DefaultStopGrace
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	return &Supervisor{
		log:      log.Named("encoder"),
		sink:     sink,
		opts:     opts,
		pool:     newSlotPool(opts.MaxConcurrent),
		lookPath: exec.LookPath,
		now:      time.Now,
		running:  make(map[string]*process),
	}
}

// Start spawns the encoder for job and returns once the child is running.
// Output forwarding and reaping continue on a worker goroutine.
func (s *Supervisor) Start(ctx context.Context, job Job) (*Handle, error) {
	if job.SessionID == "" {
		return nil, &apperr.EncoderLaunchError{Reason: apperr.SpawnFailed, Err: errors.New("empty session id")}
	}
	log := s.log.With(zap.String("session_id", job.SessionID))

	bin, err := s.lookPath(s.opts.Binary)
	if err != nil {
		log.Error("encoder binary not found", zap.String("binary", s.opts.Binary), zap.Error(err))
		return nil, &apperr.EncoderLaunchError{Reason: apperr.BinaryMissing, Err: err}
	}

	if !s.pool.tryAcquire(job.SessionID) {
		err := fmt.Errorf("%d of %d encoder slots in use", s.pool.current(), s.pool.capacity())
		log.Warn("encoder slot unavailable", zap.Error(err))
		return nil, &apperr.EncoderLaunchError{Reason: apperr.AlreadyRunning, Err: err}
	}

	cmd := ffmpegcmd.FromStream(&ffmpegcmd.Stream{
		Binary:     bin,
		Input:      job.VideoRef,
		IngestBase: cmp.Or(job.IngestBase, s.opts.IngestBase),
		IngestKey:  job.IngestKey,
		Override:   job.IngestURLOverride,
		Shorts:     job.ShortsMode,
	})
	argv := cmd.BuildArgv()
	// The target carries the stream key.
	log.Debug("launching encoder", zap.String("cmd", cmd.BuildString()))

	p, err := startProcess(log, argv)
	if err != nil {
		s.pool.release(job.SessionID)
		log.Error("encoder spawn failed", zap.Error(err))
		return nil, &apperr.EncoderLaunchError{Reason: apperr.SpawnFailed, Err: err}
	}

	s.mu.Lock()
	s.running[job.SessionID] = p
	s.mu.Unlock()

	s.sink.Append(ctx, logevent.LogEvent{
		SessionID:   job.SessionID,
		Kind:        logevent.Info,
		Message:     fmt.Sprintf("encoder started (pid %d)", p.pid()),
		VideoRef:    job.VideoRef,
		ChannelName: job.ChannelName,
	})

	go s.supervise(job, p)

	return &Handle{
		SessionID: job.SessionID,
		PID:       p.pid(),
		Argv:      argv,
		StartedAt: s.now(),
		done:      p.done,
	}, nil
}

// supervise is the job's worker: it forwards output lines in order, reaps the
// child, records the outcome and releases the slot.
func (s *Supervisor) supervise(job Job, p *process) {
	ctx := context.Background()
	event := func(kind logevent.Kind, msg string) {
		s.sink.Append(ctx, logevent.LogEvent{
			SessionID:   job.SessionID,
			Kind:        kind,
			Message:     msg,
			VideoRef:    job.VideoRef,
			ChannelName: job.ChannelName,
		})
	}

	p.forward(func(line string) { event(logevent.Encoder, line) })

	code, signal, err := p.wait()
	exit := Exit{
		SessionID: job.SessionID,
		ExitCode:  code,
		Signal:    signal,
		Stopped:   p.stopping.Load(),
	}

	switch {
	case exit.Stopped:
		event(logevent.Info, "stopped")
	case err == nil:
		event(logevent.Info, "completed")
	default:
		exit.Err = &apperr.EncoderRuntimeError{SessionID: job.SessionID, ExitCode: code, Signal: signal, Err: err}
		event(logevent.Info, "error: "+exit.Err.Error())
	}

	if job.OnExit != nil {
		job.OnExit(exit)
	}

	s.mu.Lock()
	delete(s.running, job.SessionID)
	s.mu.Unlock()
	s.pool.release(job.SessionID)

	close(p.done)
}

// Stop terminates the encoder of sessionID and waits until it is reaped.
// stopped is false when nothing was running for that session.
func (s *Supervisor) Stop(ctx context.Context, sessionID string) (stopped bool, err error) {
	s.mu.Lock()
	p, ok := s.running[sessionID]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}

	s.log.Info("stopping encoder", zap.String("session_id", sessionID), zap.Int("cmd_pid", p.pid()))
	p.stop(s.opts.StopGrace)

	select {
	case <-p.done:
		return true, nil
	case <-ctx.Done():
		return true, fmt.Errorf("stop encoder %q: %w", sessionID, ctx.Err())
	}
}

// StopAll stops every running encoder, used on shutdown.
func (s *Supervisor) StopAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, id := range s.Running() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Stop(ctx, id); err != nil {
				s.log.Warn("encoder stop incomplete", zap.String("session_id", id), zap.Error(err))
			}
		}()
	}
	wg.Wait()
}

// Running lists the session ids with a live encoder, sorted.
func (s *Supervisor) Running() []string {
	return s.pool.listAcquired()
}
