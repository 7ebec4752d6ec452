// Package scheduler owns the session state machine. It is the only component
// the API talks to for creating, scheduling, starting, stopping and cancelling
// sessions.
//
// Runtime model
//   - Sessions live in memory and are written through to the durable
//     collection. A failed durable write is logged and recorded as an ERROR
//     event; it never fails the control operation.
//   - Mutations of the same session are serialized by a per-session gate.
//     Reads (Get/List) only take the map lock.
//   - Side effects land first (provisioning, encoder spawn), then the status
//     changes. A failed Start leaves the status where it was.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edirooss/livepush/internal/apperr"
	"github.com/edirooss/livepush/internal/config"
	"github.com/edirooss/livepush/internal/domain/credential"
	"github.com/edirooss/livepush/internal/domain/logevent"
	"github.com/edirooss/livepush/internal/domain/session"
	"github.com/edirooss/livepush/internal/encoder"
	"github.com/edirooss/livepush/internal/provisioner"
	"github.com/edirooss/livepush/internal/repo"
)

// ErrExists is returned by Create for a session id that was ever used before.
var ErrExists = errors.New("session id already used")

const persistTimeout = 3 * time.Second

type Repository interface {
	Create(ctx context.Context, s *session.Session) error
	Upsert(ctx context.Context, s *session.Session) error
	GetAll(ctx context.Context) ([]*session.Session, error)
}

type Sink interface {
	Append(ctx context.Context, ev logevent.LogEvent) *logevent.LogEvent
}

type Encoder interface {
	Start(ctx context.Context, job encoder.Job) (*encoder.Handle, error)
	Stop(ctx context.Context, sessionID string) (bool, error)
}

type Provisioner interface {
	Provision(ctx context.Context, channelID string, req provisioner.Request) (*provisioner.Result, error)
	Resume(ctx context.Context, channelID string, partial session.Partial, req provisioner.Request) (*provisioner.Result, error)
}

// Credentials lists the channels a broadcast can be provisioned on.
type Credentials interface {
	ListActive(ctx context.Context) ([]*credential.Credential, error)
}

type Deps struct {
	Repo        Repository
	Events      Sink
	Encoder     Encoder
	Provisioner Provisioner
	Credentials Credentials
}

type Options struct {
	Channels     *config.Channels
	AutoStartDue bool
}

type CreateRequest struct {
	SessionID     string
	Kind          session.Kind
	ScheduledAt   *time.Time
	VideoRef      string
	Title         string
	Description   string
	Tags          []string
	Category      string
	Privacy       session.Privacy
	MadeForKids   bool
	ChannelName   string
	ShortsMode    bool
	AutoProvision bool
	IngestKey     string
	IngestURL     string
}

type Scheduler struct {
	log  *zap.Logger
	deps Deps
	opts Options
	now  func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session.Session

	gates sync.Map // map[string]*gate

	dueMu sync.Mutex
	due   *dueQueue
	wake  chan struct{}
}

// New loads the persisted sessions and reconciles them: a session recorded as
// active has no encoder after a restart, so it is completed with an ERROR event.
func New(ctx context.Context, log *zap.Logger, deps Deps, opts Options) (*Scheduler, error) {
	sc := &Scheduler{
		log:      log.Named("scheduler"),
		deps:     deps,
		opts:     opts,
		now:      time.Now,
		sessions: make(map[string]*session.Session),
		due:      newDueQueue(),
		wake:     make(chan struct{}, 1),
	}
	if err := sc.reconcileOnStart(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap reconcile: %w", err)
	}
	return sc, nil
}

func (sc *Scheduler) reconcileOnStart(ctx context.Context) error {
	all, err := sc.deps.Repo.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("get all: %w", err)
	}

	for _, s := range all {
		if s.Status == session.StatusActive {
			_ = s.Transition(session.StatusCompleted, sc.now())
			sc.event(ctx, s, logevent.Error, "encoder not running after restart; session marked completed")
			sc.persist(ctx, s)
		}
		sc.sessions[s.ID] = s
		sc.enqueue(s)
	}

	sc.log.Info("sessions loaded", zap.Int("count", len(all)), zap.Int("due", sc.due.len()))
	return nil
}

// Create validates and records a new session. An immediate session is started
// right away; if that start fails the created session is returned together
// with the error.
func (sc *Scheduler) Create(ctx context.Context, req CreateRequest) (*session.Session, error) {
	now := sc.now()
	s := &session.Session{
		ID:            strings.TrimSpace(req.SessionID),
		CreatedAt:     now,
		UpdatedAt:     now,
		ScheduledAt:   req.ScheduledAt,
		VideoRef:      req.VideoRef,
		Title:         req.Title,
		Description:   req.Description,
		Tags:          req.Tags,
		Category:      req.Category,
		Privacy:       req.Privacy,
		MadeForKids:   req.MadeForKids,
		ChannelName:   req.ChannelName,
		Kind:          req.Kind,
		Status:        session.InitialStatus(req.Kind),
		ShortsMode:    req.ShortsMode,
		AutoProvision: req.AutoProvision,
		IngestKey:     req.IngestKey,
		IngestURL:     req.IngestURL,
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.Privacy == "" {
		s.Privacy = session.PrivacyPublic
	}
	if s.Kind == session.KindScheduled {
		at := session.NormalizeSchedule(s.ScheduledAt, now)
		s.ScheduledAt = &at
	}

	sc.mu.Lock()
	if _, ok := sc.sessions[s.ID]; ok {
		sc.mu.Unlock()
		return nil, fmt.Errorf("session %q: %w", s.ID, ErrExists)
	}
	sc.sessions[s.ID] = s.Clone()
	sc.mu.Unlock()

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	err := sc.deps.Repo.Create(pctx, s.Clone())
	cancel()
	switch {
	case errors.Is(err, repo.ErrSessionExists):
		sc.mu.Lock()
		delete(sc.sessions, s.ID)
		sc.mu.Unlock()
		return nil, fmt.Errorf("session %q: %w", s.ID, ErrExists)
	case err != nil:
		sc.persistFailed(ctx, s, err)
	}

	sc.log.Info("session created",
		zap.String("session_id", s.ID),
		zap.String("kind", string(s.Kind)),
		zap.String("status", string(s.Status)))
	sc.enqueue(s)

	if s.Kind == session.KindImmediate {
		started, err := sc.Start(ctx, s.ID)
		if err != nil {
			return s.Clone(), err
		}
		return started, nil
	}
	return s.Clone(), nil
}

// Schedule turns a draft into a pending session. A pending scheduled session
// may be rescheduled. kind immediate starts the session right away.
func (sc *Scheduler) Schedule(ctx context.Context, id string, kind session.Kind, at *time.Time) (*session.Session, error) {
	if kind != session.KindScheduled && kind != session.KindImmediate {
		return nil, apperr.Validation("kind", "must be scheduled or immediate")
	}
	if kind == session.KindScheduled && at == nil {
		return nil, apperr.Validation("scheduled_at", "required for scheduled sessions")
	}

	unlock, err := sc.tryLock(id)
	if err != nil {
		return nil, err
	}
	s, err := sc.get(id)
	if err != nil {
		unlock()
		return nil, err
	}

	now := sc.now()
	prev := s.Status
	switch s.Status {
	case session.StatusDraft:
		if err := s.Transition(session.StatusPending, now); err != nil {
			unlock()
			return nil, err
		}
	case session.StatusPending:
		s.UpdatedAt = now
	default:
		unlock()
		return nil, sc.reject(ctx, s, apperr.Validation("status", "cannot schedule a "+string(s.Status)+" session"))
	}

	s.Kind = kind
	s.ScheduledAt = nil
	if kind == session.KindScheduled {
		t := session.NormalizeSchedule(at, now)
		s.ScheduledAt = &t
	}

	sc.put(s)
	sc.persist(ctx, s)
	switch {
	case prev != s.Status:
		sc.transitioned(ctx, s, prev)
	case s.ScheduledAt != nil:
		sc.event(ctx, s, logevent.Info, "rescheduled for "+s.ScheduledAt.Format(time.RFC3339))
	}
	sc.enqueue(s)
	unlock()

	if kind == session.KindImmediate {
		return sc.Start(ctx, id)
	}
	return s.Clone(), nil
}

// Start moves a pending session to active: it resolves the ingest key
// (provisioning first when requested), validates, and launches the encoder.
// Any failure leaves the status unchanged.
func (sc *Scheduler) Start(ctx context.Context, id string) (*session.Session, error) {
	unlock, err := sc.tryLock(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s, err := sc.get(id)
	if err != nil {
		return nil, err
	}
	if !session.CanTransition(s.Status, session.StatusActive) {
		return nil, sc.reject(ctx, s, apperr.Validation("status", "cannot start a "+string(s.Status)+" session"))
	}
	if strings.TrimSpace(s.VideoRef) == "" {
		return nil, sc.reject(ctx, s, apperr.Validation("video_ref", "required to start streaming"))
	}

	if s.AutoProvision {
		if err := sc.ensureProvisioned(ctx, s); err != nil {
			return nil, sc.reject(ctx, s, err)
		}
	}

	launch := s.Clone()
	if launch.IngestKey == "" {
		launch.IngestKey = sc.opts.Channels.StreamKey(s.ChannelName)
	}
	if err := launch.ValidateLaunch(); err != nil {
		return nil, sc.reject(ctx, s, err)
	}

	// The exit path waits until the active status has been recorded.
	ready := make(chan struct{})
	h, err := sc.deps.Encoder.Start(ctx, encoder.Job{
		SessionID:         s.ID,
		VideoRef:          s.VideoRef,
		IngestKey:         launch.IngestKey,
		IngestBase:        s.IngestBase,
		IngestURLOverride: s.IngestURL,
		ShortsMode:        s.ShortsMode,
		ChannelName:       s.ChannelName,
		OnExit: func(exit encoder.Exit) {
			<-ready
			sc.finish(exit)
		},
	})
	if err != nil {
		return nil, sc.reject(ctx, s, err)
	}

	prev := s.Status
	if err := s.Transition(session.StatusActive, sc.now()); err != nil {
		// unreachable: checked above under the same gate
		sc.log.Error("transition after launch", zap.String("session_id", id), zap.Error(err))
	}
	sc.put(s)
	sc.dequeue(id)
	sc.persist(ctx, s)
	sc.transitioned(ctx, s, prev)
	close(ready)

	sc.log.Info("session started", zap.String("session_id", id), zap.Int("cmd_pid", h.PID))
	return s.Clone(), nil
}

// finish runs on the encoder's worker once the process has been reaped.
func (sc *Scheduler) finish(exit encoder.Exit) {
	ctx := context.Background()
	unlock := sc.lock(exit.SessionID)
	defer unlock()

	s, err := sc.get(exit.SessionID)
	if err != nil {
		sc.log.Error("encoder exit for unknown session", zap.String("session_id", exit.SessionID))
		return
	}
	if exit.Err != nil {
		sc.event(ctx, s, logevent.Error, exit.Err.Error())
	}
	sc.complete(ctx, s)
}

func (sc *Scheduler) complete(ctx context.Context, s *session.Session) {
	prev := s.Status
	if err := s.Transition(session.StatusCompleted, sc.now()); err != nil {
		sc.log.Error("complete session", zap.String("session_id", s.ID), zap.Error(err))
		return
	}
	sc.put(s)
	sc.persist(ctx, s)
	sc.transitioned(ctx, s, prev)
}

// Stop ends an active session and waits for its encoder to be reaped.
// Stopping a session that is not active is a no-op reported by stopped=false.
func (sc *Scheduler) Stop(ctx context.Context, id string) (s *session.Session, stopped bool, err error) {
	unlock, err := sc.tryLock(id)
	if err != nil {
		return nil, false, err
	}
	s, err = sc.get(id)
	// The exit path takes the gate to complete the session.
	unlock()
	if err != nil {
		return nil, false, err
	}
	if s.Status != session.StatusActive {
		return s, false, nil
	}

	stopped, err = sc.deps.Encoder.Stop(ctx, id)
	if err != nil {
		sc.event(ctx, s, logevent.Error, "stop: "+err.Error())
		return nil, false, err
	}
	if !stopped {
		// Active without a live encoder; nothing will report an exit.
		relock := sc.lock(id)
		if cur, err := sc.get(id); err == nil && cur.Status == session.StatusActive {
			sc.event(ctx, cur, logevent.Error, "no encoder running for active session")
			sc.complete(ctx, cur)
		}
		relock()
	}

	s, err = sc.get(id)
	return s, true, err
}

// Cancel moves a draft or pending session to cancelled.
func (sc *Scheduler) Cancel(ctx context.Context, id string) (*session.Session, error) {
	unlock, err := sc.tryLock(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s, err := sc.get(id)
	if err != nil {
		return nil, err
	}
	prev := s.Status
	if err := s.Transition(session.StatusCancelled, sc.now()); err != nil {
		return nil, sc.reject(ctx, s, err)
	}
	sc.put(s)
	sc.dequeue(id)
	sc.persist(ctx, s)
	sc.transitioned(ctx, s, prev)
	return s.Clone(), nil
}

// Provision creates (or finishes creating) the remote broadcast of a draft or
// pending session ahead of its start.
func (sc *Scheduler) Provision(ctx context.Context, id string) (*session.Session, error) {
	unlock, err := sc.tryLock(id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s, err := sc.get(id)
	if err != nil {
		return nil, err
	}
	if s.Status != session.StatusDraft && s.Status != session.StatusPending {
		return nil, sc.reject(ctx, s, apperr.Validation("status", "cannot provision a "+string(s.Status)+" session"))
	}
	if err := sc.ensureProvisioned(ctx, s); err != nil {
		return nil, sc.reject(ctx, s, err)
	}
	return s.Clone(), nil
}

// ensureProvisioned reuses an existing broadcast, resumes an interrupted
// provisioning, or provisions from scratch. Results, including partial ones,
// are stored on s.
func (sc *Scheduler) ensureProvisioned(ctx context.Context, s *session.Session) error {
	if s.Provisioned() {
		return nil
	}

	channelID, err := sc.channelID(ctx, s.ChannelName)
	if err != nil {
		return err
	}
	req := provisioner.Request{
		Title:       s.Title,
		Description: s.Description,
		ScheduledAt: s.ScheduledAt,
		Tags:        s.Tags,
		Category:    s.Category,
		Privacy:     s.Privacy,
		MadeForKids: s.MadeForKids,
	}

	var res *provisioner.Result
	if s.Partial != nil {
		res, err = sc.deps.Provisioner.Resume(ctx, channelID, *s.Partial, req)
	} else {
		res, err = sc.deps.Provisioner.Provision(ctx, channelID, req)
	}
	if err != nil {
		var perr *apperr.ProvisioningError
		if errors.As(err, &perr) && perr.Partial {
			s.Partial = &session.Partial{
				StreamID:    perr.StreamID,
				IngestKey:   perr.IngestKey,
				IngestURL:   perr.IngestURL,
				BroadcastID: perr.BroadcastID,
			}
			s.UpdatedAt = sc.now()
			sc.put(s)
			sc.persist(ctx, s)
		}
		return err
	}

	s.Partial = nil
	s.StreamID = res.StreamID
	s.IngestKey = res.IngestKey
	s.IngestBase = res.IngestURL
	s.BroadcastID = res.BroadcastID
	s.WatchURL = res.WatchURL
	s.UpdatedAt = sc.now()
	sc.put(s)
	sc.persist(ctx, s)
	sc.event(ctx, s, logevent.Info, "broadcast provisioned: "+s.WatchURL)
	return nil
}

// channelID maps a channel name to the credential to provision with: the
// configured channel id first, then an active credential of that name. An
// empty name selects the most recently used credential.
func (sc *Scheduler) channelID(ctx context.Context, name string) (string, error) {
	if ch, ok := sc.opts.Channels.ByName(name); ok && ch.ChannelID != "" {
		return ch.ChannelID, nil
	}
	creds, err := sc.deps.Credentials.ListActive(ctx)
	if err != nil {
		return "", &apperr.CredentialError{ChannelID: name, Op: "lookup", Err: err}
	}
	for _, c := range creds {
		if name == "" || c.ChannelName == name {
			return c.ChannelID, nil
		}
	}
	return "", &apperr.CredentialError{ChannelID: name, Op: "lookup", Err: apperr.ErrNotFound}
}

// Get returns a copy of the session.
func (sc *Scheduler) Get(_ context.Context, id string) (*session.Session, error) {
	return sc.get(id)
}

// List returns copies of the matching sessions ordered by schedule.
func (sc *Scheduler) List(_ context.Context, f session.Filter) []*session.Session {
	sc.mu.RLock()
	out := make([]*session.Session, 0, len(sc.sessions))
	for _, s := range sc.sessions {
		if f.Match(s) {
			out = append(out, s.Clone())
		}
	}
	sc.mu.RUnlock()

	session.SortBySchedule(out)
	return out
}

func (sc *Scheduler) get(id string) (*session.Session, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	s, ok := sc.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, apperr.ErrNotFound)
	}
	return s.Clone(), nil
}

func (sc *Scheduler) put(s *session.Session) {
	sc.mu.Lock()
	sc.sessions[s.ID] = s.Clone()
	sc.mu.Unlock()
}

func (sc *Scheduler) persist(ctx context.Context, s *session.Session) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := sc.deps.Repo.Upsert(ctx, s.Clone()); err != nil {
		sc.persistFailed(ctx, s, err)
	}
}

func (sc *Scheduler) persistFailed(ctx context.Context, s *session.Session, err error) {
	err = apperr.Persistence("sessions", "upsert", err)
	sc.log.Error("session not persisted", zap.String("session_id", s.ID), zap.Error(err))
	sc.event(ctx, s, logevent.Error, err.Error())
}

// reject records a failed operation as an ERROR event and returns err.
func (sc *Scheduler) reject(ctx context.Context, s *session.Session, err error) error {
	sc.log.Warn("operation rejected", zap.String("session_id", s.ID), zap.Error(err))
	sc.event(ctx, s, logevent.Error, err.Error())
	return err
}

func (sc *Scheduler) transitioned(ctx context.Context, s *session.Session, from session.Status) {
	sc.event(ctx, s, logevent.Info, fmt.Sprintf("status %s -> %s", from, s.Status))
}

func (sc *Scheduler) event(ctx context.Context, s *session.Session, kind logevent.Kind, msg string) {
	sc.deps.Events.Append(ctx, logevent.LogEvent{
		SessionID:   s.ID,
		Kind:        kind,
		Message:     msg,
		VideoRef:    s.VideoRef,
		ChannelName: s.ChannelName,
	})
}
