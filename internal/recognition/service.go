// Package recognition runs the camera loop that keeps track of who is in
// front of the camera.
package recognition

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/carecam/internal/camera"
	"github.com/kozaktomas/carecam/internal/facematch"
	"github.com/kozaktomas/carecam/internal/logger"
)

// ErrAlreadyRunning is returned by Run when the loop is already active.
var ErrAlreadyRunning = errors.New("recognition loop already running")

// Recognizer is satisfied by *facematch.Matcher.
type Recognizer interface {
	Recognize(ctx context.Context, frame image.Image) ([]facematch.Result, error)
}

// Identity is the person currently in front of the camera.
type Identity struct {
	Name      string    `json:"name"`
	Distance  float64   `json:"distance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Known reports whether the identity is an enrolled person.
func (i Identity) Known() bool {
	return i.Name != facematch.Unknown
}

type Options struct {
	// Interval is the pause between two cycles.
	Interval time.Duration
	// LastSeenFile is rewritten after every cycle when set.
	LastSeenFile string
	// Visits records visits on transitions to a known person when set.
	Visits *VisitRecorder
	// OnChange is called from the loop goroutine when the identity name changes.
	OnChange func(prev, cur Identity)
	Now      func() time.Time
}

// Status describes the loop for health reporting.
type Status struct {
	Running bool   `json:"running"`
	Cycles  uint64 `json:"cycles"`
	Error   string `json:"error,omitempty"`
}

// State is "running" or "stopped".
func (s Status) State() string {
	if s.Running {
		return "running"
	}
	return "stopped"
}

// Service is the only writer of the current identity. Readers call Current.
type Service struct {
	source  camera.Source
	matcher Recognizer
	frames  *Broadcaster
	opts    Options
	log     *logger.Logger

	running atomic.Bool
	cycles  atomic.Uint64
	current atomic.Pointer[Identity]

	mu      sync.RWMutex
	raw     image.Image
	stopErr error
}

func NewService(source camera.Source, matcher Recognizer, opts Options, log *logger.Logger) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{
		source:  source,
		matcher: matcher,
		frames:  NewBroadcaster(),
		opts:    opts,
		log:     log.With("component", "recognition"),
	}
	s.current.Store(&Identity{Name: facematch.Unknown})
	return s
}

// Current returns a copy of the current identity.
func (s *Service) Current() Identity {
	return *s.current.Load()
}

// Frames returns the broadcaster carrying annotated JPEG frames.
func (s *Service) Frames() *Broadcaster {
	return s.frames
}

// LatestFrame returns the last raw frame read from the camera.
func (s *Service) LatestFrame() (image.Image, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.raw, s.raw != nil
}

func (s *Service) Status() Status {
	st := Status{Running: s.running.Load(), Cycles: s.cycles.Load()}
	s.mu.RLock()
	if s.stopErr != nil {
		st.Error = s.stopErr.Error()
	}
	s.mu.RUnlock()
	return st
}

// Run reads and recognizes frames until ctx is done or the camera becomes
// unavailable, in which case the camera error is returned. Read timeouts and
// detector failures only skip the cycle.
func (s *Service) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	s.setStopErr(nil)
	var lastSeen string
	if s.opts.LastSeenFile != "" {
		lastSeen = ReadLastSeen(s.opts.LastSeenFile)
	}
	s.log.Info("recognition loop started", "last_seen", lastSeen)
	for {
		if ctx.Err() != nil {
			s.log.Info("recognition loop stopped")
			return nil
		}

		err := s.cycle(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			continue
		case errors.Is(err, camera.ErrUnavailable):
			s.log.Error("camera unavailable, stopping recognition", "error", err)
			s.setStopErr(err)
			return err
		case errors.Is(err, camera.ErrTimeout):
			s.log.Warn("camera read timed out")
		default:
			s.log.Warn("frame read failed", "error", err)
		}

		if s.opts.Interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.opts.Interval):
			}
		}
	}
}

func (s *Service) cycle(ctx context.Context) error {
	frame, err := s.source.Next(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.raw = frame
	s.mu.Unlock()

	results, err := s.matcher.Recognize(ctx, frame)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn("face detection failed", "error", err)
		results = nil
	}

	now := s.opts.Now()
	cur := identityOf(results, now)
	prev := *s.current.Swap(&cur)
	s.cycles.Add(1)

	if data, err := facematch.EncodeJPEG(Annotate(frame, results)); err != nil {
		s.log.Warn("encoding display frame failed", "error", err)
	} else {
		s.frames.Publish(data)
	}

	if s.opts.LastSeenFile != "" {
		if err := WriteLastSeen(s.opts.LastSeenFile, cur); err != nil {
			s.log.Warn("writing last seen record failed", "error", err)
		}
	}

	if prev.Name != cur.Name {
		s.log.Debug("identity changed", "from", prev.Name, "to", cur.Name)
		if s.opts.OnChange != nil {
			s.opts.OnChange(prev, cur)
		}
		if cur.Known() && s.opts.Visits != nil {
			if _, err := s.opts.Visits.Observe(ctx, cur.Name, now); err != nil {
				s.log.Warn("recording visit failed", "name", cur.Name, "error", err)
			}
		}
	}
	return nil
}

func identityOf(results []facematch.Result, now time.Time) Identity {
	for _, r := range results {
		if r.Known() {
			return Identity{Name: r.Name, Distance: r.Distance, UpdatedAt: now}
		}
	}
	return Identity{Name: facematch.Unknown, UpdatedAt: now}
}

func (s *Service) setStopErr(err error) {
	s.mu.Lock()
	s.stopErr = err
	s.mu.Unlock()
}
