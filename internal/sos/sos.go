package sos

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jzmtx/routeguardweb/internal/api"
	"github.com/jzmtx/routeguardweb/internal/location"
	"github.com/jzmtx/routeguardweb/internal/media"
	"github.com/jzmtx/routeguardweb/internal/notify"
)

var ErrBusy = errors.New("an SOS session is already in progress")

type State int

const (
	StateIdle State = iota
	StateCountingDown
	StateActive
)

func (s State) String() string {
	switch s {
	case StateCountingDown:
		return "counting_down"
	case StateActive:
		return "active"
	default:
		return "idle"
	}
}

type Backend interface {
	TriggerSOS(ctx context.Context, lat, lng float64, at time.Time) (api.SOSDispatch, error)
	UpdateSOSLocation(ctx context.Context, alertID string, s location.Sample) error
	AddSOSMedia(ctx context.Context, alertID, mediaURL, mediaType string) error
	ResolveSOS(ctx context.Context, alertID, resolvedBy string) error
}

type Uploader interface {
	Enabled() bool
	Upload(ctx context.Context, kind string, c media.Chunk) (string, error)
}

// Event is published on the sos topic on every state change.
type Event struct {
	State       string           `json:"state"`
	SecondsLeft int              `json:"seconds_left,omitempty"`
	AlertID     string           `json:"alert_id,omitempty"`
	BackupMode  bool             `json:"backup_mode,omitempty"`
	Dispatch    *api.SOSDispatch `json:"dispatch,omitempty"`
}

// Status is the poll-style view of the session.
type Status struct {
	State      string           `json:"state"`
	AlertID    string           `json:"alert_id,omitempty"`
	ElapsedSec int              `json:"elapsed_sec"`
	Dispatch   *api.SOSDispatch `json:"dispatch,omitempty"`
}

type Config struct {
	CountdownSeconds int
	TickInterval     time.Duration
	LocationInterval time.Duration
	LocationTimeout  time.Duration
	ChunkLength      time.Duration
	NotifyDelay      time.Duration
}

// Session drives one emergency alert at a time through countdown,
// dispatch, live location sharing, and evidence recording.
type Session struct {
	backend  Backend
	source   location.Source
	audio    media.Recorder
	video    media.Recorder
	uploader Uploader
	notes    notify.Notifier
	pub      notify.Publisher
	cfg      Config
	logger   *slog.Logger

	mu          sync.Mutex
	state       State
	alertID     string
	dispatch    *api.SOSDispatch
	activatedAt time.Time
	cancel      context.CancelFunc
	poller      *location.Poller
}

func NewSession(backend Backend, source location.Source, audio, video media.Recorder, uploader Uploader, notes notify.Notifier, pub notify.Publisher, cfg Config, logger *slog.Logger) *Session {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	return &Session{
		backend:  backend,
		source:   source,
		audio:    audio,
		video:    video,
		uploader: uploader,
		notes:    notes,
		pub:      pub,
		cfg:      cfg,
		logger:   logger,
	}
}

// BeginCountdown starts the cancellation grace period. Nothing reaches
// the backend until the countdown completes.
func (s *Session) BeginCountdown(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		s.notes.Warning("SOS is already in progress")
		return ErrBusy
	}
	ctx, cancel := context.WithCancel(ctx)
	s.state = StateCountingDown
	s.cancel = cancel
	s.mu.Unlock()

	go s.countdown(ctx)
	return nil
}

func (s *Session) countdown(ctx context.Context) {
	for left := s.cfg.CountdownSeconds; left >= 1; left-- {
		s.pub.Publish("sos", Event{State: "counting_down", SecondsLeft: left})
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.TickInterval):
		}
	}
	s.activate(ctx)
}

// CancelCountdown aborts a pending alert. Safe to call at any time; it
// does nothing unless a countdown is running.
func (s *Session) CancelCountdown() {
	s.mu.Lock()
	if s.state != StateCountingDown {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.cancel = nil
	s.state = StateIdle
	s.mu.Unlock()

	s.pub.Publish("sos", Event{State: "cancelled"})
	s.notes.Info("SOS cancelled")
}

// activate fires the alert. A failure at any step before the backend
// accepts the alert resets the session to idle with nothing running.
func (s *Session) activate(ctx context.Context) {
	fixCtx, cancel := context.WithTimeout(ctx, s.cfg.LocationTimeout)
	fix, err := s.source.Current(fixCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.notes.Error("Could not determine your location for the SOS alert")
		s.fail()
		return
	}

	dispatch, err := s.backend.TriggerSOS(ctx, fix.Lat, fix.Lng, time.Now())
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.notes.Error("Failed to send SOS alert")
		s.fail()
		return
	}

	s.mu.Lock()
	if s.state != StateCountingDown {
		s.mu.Unlock()
		// Cancelled while the trigger was in flight. The alert exists
		// on the backend, so close it out.
		rctx, rcancel := context.WithTimeout(context.Background(), s.cfg.LocationTimeout)
		if rerr := s.backend.ResolveSOS(rctx, dispatch.AlertID, "user"); rerr != nil {
			s.logger.Warn("resolve after cancel failed", "alert_id", dispatch.AlertID, "error", rerr)
		}
		rcancel()
		return
	}
	sessionCtx, sessionCancel := context.WithCancel(context.Background())
	s.cancel = sessionCancel
	s.state = StateActive
	s.alertID = dispatch.AlertID
	s.dispatch = &dispatch
	s.activatedAt = time.Now()
	poller := location.NewPoller(s.source, s.cfg.LocationInterval, s.cfg.LocationTimeout)
	s.poller = poller
	alertID := s.alertID
	s.mu.Unlock()

	if dispatch.BackupMode {
		s.notes.Warning("No officers available right now. Your emergency contacts and the nearest station have been notified.")
	} else {
		s.notes.Success("SOS alert sent. Help is on the way.")
	}
	s.pub.Publish("sos", Event{State: "active", AlertID: alertID, BackupMode: dispatch.BackupMode, Dispatch: &dispatch})

	poller.Start(sessionCtx, func(sample location.Sample) {
		uctx, ucancel := context.WithTimeout(sessionCtx, s.cfg.LocationTimeout)
		if err := s.backend.UpdateSOSLocation(uctx, alertID, sample); err != nil && sessionCtx.Err() == nil {
			s.logger.Warn("sos location update failed", "alert_id", alertID, "error", err)
		}
		ucancel()
	}, func(err error) {
		s.logger.Warn("sos location fix failed", "alert_id", alertID, "error", err)
	})

	s.record(sessionCtx, alertID, "audio", s.audio)
	s.record(sessionCtx, alertID, "video", s.video)

	go func() {
		select {
		case <-sessionCtx.Done():
		case <-time.After(s.cfg.NotifyDelay):
			s.pub.Publish("sos", Event{State: "notified", AlertID: alertID, BackupMode: dispatch.BackupMode})
		}
	}()
}

// record starts one evidence stream and forwards its chunks. An audio
// permission failure downgrades to GPS-only with a warning; anything
// else missing is just logged.
func (s *Session) record(ctx context.Context, alertID, kind string, rec media.Recorder) {
	if rec == nil {
		return
	}
	ch, err := rec.Start(ctx, s.cfg.ChunkLength)
	if err != nil {
		if kind == "audio" {
			s.notes.Warning("Audio recording unavailable. Continuing with live location only.")
		}
		s.logger.Warn("recorder unavailable", "kind", kind, "alert_id", alertID, "error", err)
		return
	}

	go func() {
		for chunk := range ch {
			if s.uploader == nil || !s.uploader.Enabled() {
				continue
			}
			url, err := s.uploader.Upload(ctx, "sos-"+kind, chunk)
			if err != nil {
				s.logger.Warn("media upload failed", "kind", kind, "alert_id", alertID, "error", err)
				continue
			}
			if err := s.backend.AddSOSMedia(ctx, alertID, url, kind); err != nil && ctx.Err() == nil {
				s.logger.Warn("attach media failed", "kind", kind, "alert_id", alertID, "error", err)
			}
		}
	}()
}

func (s *Session) fail() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.state = StateIdle
	s.mu.Unlock()
	s.pub.Publish("sos", Event{State: "failed"})
}

// End resolves an active alert after the confirmer approves; during a
// countdown it cancels instead. Ending an idle session is a no-op.
func (s *Session) End(ctx context.Context, confirm notify.Confirmer) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	switch state {
	case StateIdle:
		return nil
	case StateCountingDown:
		s.CancelCountdown()
		return nil
	}

	if confirm != nil && !confirm.Confirm("Are you safe? This will resolve the SOS alert.") {
		return nil
	}

	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return nil
	}
	alertID := s.alertID
	poller := s.poller
	cancel := s.cancel
	s.state = StateIdle
	s.alertID = ""
	s.dispatch = nil
	s.activatedAt = time.Time{}
	s.poller = nil
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if poller != nil {
		poller.Stop()
	}

	if err := s.backend.ResolveSOS(ctx, alertID, "user"); err != nil {
		s.logger.Warn("resolve sos failed", "alert_id", alertID, "error", err)
	}

	s.pub.Publish("sos", Event{State: "resolved", AlertID: alertID})
	s.notes.Success("SOS resolved. Stay safe.")
	return nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := Status{State: s.state.String(), AlertID: s.alertID, Dispatch: s.dispatch}
	if s.state == StateActive {
		status.ElapsedSec = int(time.Since(s.activatedAt).Seconds())
	}
	return status
}
