// Package renderer tracks the AVTransport endpoint for each configured
// renderer and serializes transport commands against it.
package renderer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mhdawson/MqttDlnaPlay/internal/discovery"
	"github.com/mhdawson/MqttDlnaPlay/internal/domain"
	"github.com/mhdawson/MqttDlnaPlay/internal/upnp"
)

type transportClient interface {
	SetAVTransportURI(ctx context.Context, endpoint, mediaURL, metadata string) error
	Play(ctx context.Context, endpoint string) error
	Pause(ctx context.Context, endpoint string) error
	Stop(ctx context.Context, endpoint string) error
	Seek(ctx context.Context, endpoint string, offset time.Duration) error
}

type deviceDiscoverer interface {
	Discover(ctx context.Context, deviceType string, match func(*domain.DeviceDescription) bool) (*domain.DeviceDescription, error)
}

// Target is one renderer the bridge is allowed to drive.
type Target struct {
	ID   string
	Name string
	UDN  string
	// ControlURL optionally seeds the endpoint so the first command
	// skips discovery.
	ControlURL string
}

const taskQueueDepth = 32

type session struct {
	mu     sync.Mutex
	target Target
	tasks  chan func()

	endpoint string
}

type Manager struct {
	transport transportClient
	discovery deviceDiscoverer
	logger    *slog.Logger
	activity  func(string)
	runCtx    context.Context

	settleDelay time.Duration

	sessions  map[string]*session
	defaultID string
}

// NewManager starts one worker per renderer; workers stop when runCtx
// is cancelled.
func NewManager(runCtx context.Context, targets []Target, transport transportClient, disc deviceDiscoverer, settleDelay time.Duration, logger *slog.Logger, activity func(string)) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if activity == nil {
		activity = func(string) {}
	}

	m := &Manager{
		transport:   transport,
		discovery:   disc,
		logger:      logger,
		activity:    activity,
		runCtx:      runCtx,
		settleDelay: settleDelay,
		sessions:    make(map[string]*session, len(targets)),
	}
	for i, target := range targets {
		if i == 0 {
			m.defaultID = target.ID
		}
		s := &session{
			target:   target,
			tasks:    make(chan func(), taskQueueDepth),
			endpoint: target.ControlURL,
		}
		m.sessions[target.ID] = s
		go m.runWorker(s)
	}
	return m
}

// runWorker drains one renderer's queue in submission order, so
// commands for a renderer execute exactly as they arrived while other
// renderers proceed independently.
func (m *Manager) runWorker(s *session) {
	for {
		select {
		case <-m.runCtx.Done():
			return
		case task := <-s.tasks:
			task()
		}
	}
}

// Submit queues work on a renderer's worker. Tasks for the same
// renderer run one at a time in FIFO order.
func (m *Manager) Submit(id string, task func()) {
	s, err := m.session(id)
	if err != nil {
		m.logger.Error("task_dropped", slog.String("error", err.Error()))
		return
	}
	select {
	case s.tasks <- task:
	case <-m.runCtx.Done():
	}
}

// Resolve maps a payload renderer id onto a configured session. An
// empty or unknown id falls back to the first configured renderer.
func (m *Manager) Resolve(id string) string {
	if _, ok := m.sessions[id]; ok {
		return id
	}
	return m.defaultID
}

func (m *Manager) session(id string) (*session, error) {
	s, ok := m.sessions[m.Resolve(id)]
	if !ok {
		return nil, domain.Errorf(domain.CodePlaybackFailure, "no renderers configured")
	}
	return s, nil
}

// Control runs a single transport action against a renderer. Supported
// actions are "stop", "pause", "play" and "seek:<minutes>". Unknown
// actions are ignored.
func (m *Manager) Control(ctx context.Context, id, action string) error {
	s, err := m.session(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	endpoint, err := m.ensureEndpointLocked(ctx, s)
	if err != nil {
		return err
	}

	action = strings.TrimSpace(action)
	switch {
	case action == "stop":
		err = m.transport.Stop(ctx, endpoint)
	case action == "pause":
		err = m.transport.Pause(ctx, endpoint)
	case action == "play":
		err = m.transport.Play(ctx, endpoint)
	case strings.HasPrefix(action, "seek"):
		var minutes int
		if _, rest, ok := strings.Cut(action, ":"); ok {
			minutes, err = strconv.Atoi(strings.TrimSpace(rest))
			if err != nil {
				return domain.Errorf(domain.CodePlaybackFailure, "bad seek offset in %q", action)
			}
		}
		err = m.transport.Seek(ctx, endpoint, time.Duration(minutes)*time.Minute)
	default:
		m.logger.Warn("unknown_control_action",
			slog.String("renderer", s.target.ID),
			slog.String("action", action))
		return nil
	}

	if err != nil {
		m.invalidateLocked(s)
		return domain.Errorf(domain.CodePlaybackFailure, "%s on %s: %v", action, s.target.ID, err)
	}
	return nil
}

// LoadAndPlay stops whatever the renderer is doing, waits for it to
// settle, loads the item and starts playback. A failure invalidates
// the cached endpoint so the next command rediscovers the device.
func (m *Manager) LoadAndPlay(ctx context.Context, id string, item domain.ContentItem) error {
	s, err := m.session(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	endpoint, err := m.ensureEndpointLocked(ctx, s)
	if err != nil {
		return err
	}

	// Best effort; many renderers reject Stop when nothing is loaded.
	if err := m.transport.Stop(ctx, endpoint); err != nil {
		m.logger.Debug("pre_load_stop_failed",
			slog.String("renderer", s.target.ID),
			slog.String("error", err.Error()))
	}
	if err := m.settle(ctx); err != nil {
		return err
	}

	metadata := upnp.BuildVideoMetadata(item.Title, item.URL, item.ContentType)
	if err := m.transport.SetAVTransportURI(ctx, endpoint, item.URL, metadata); err != nil {
		m.invalidateLocked(s)
		return domain.Errorf(domain.CodePlaybackFailure, "load %q on %s: %v", item.Title, s.target.ID, err)
	}
	if err := m.transport.Play(ctx, endpoint); err != nil {
		m.invalidateLocked(s)
		return domain.Errorf(domain.CodePlaybackFailure, "play %q on %s: %v", item.Title, s.target.ID, err)
	}

	m.logger.Info("playback_started",
		slog.String("renderer", s.target.ID),
		slog.String("title", item.Title),
		slog.String("url", item.URL))
	return nil
}

func (m *Manager) ensureEndpointLocked(ctx context.Context, s *session) (string, error) {
	if s.endpoint != "" {
		return s.endpoint, nil
	}

	desc, err := m.discovery.Discover(ctx, domain.DeviceTypeMediaRenderer,
		discovery.MatchRenderer(s.target.Name, s.target.UDN))
	if err != nil {
		return "", err
	}
	svc, ok := desc.Service(domain.ServiceTypeAVTransport)
	if !ok {
		return "", domain.Errorf(domain.CodePlaybackFailure, "%s has no AVTransport service", desc.FriendlyName)
	}

	s.endpoint = svc.ControlURL
	m.activity(fmt.Sprintf("renderer %s resolved to %s", s.target.ID, svc.ControlURL))
	m.logger.Info("renderer_endpoint_resolved",
		slog.String("renderer", s.target.ID),
		slog.String("friendly_name", desc.FriendlyName),
		slog.String("endpoint", svc.ControlURL))
	return s.endpoint, nil
}

func (m *Manager) invalidateLocked(s *session) {
	if s.endpoint == "" {
		return
	}
	m.logger.Warn("renderer_endpoint_invalidated",
		slog.String("renderer", s.target.ID),
		slog.String("endpoint", s.endpoint))
	s.endpoint = ""
}

func (m *Manager) settle(ctx context.Context) error {
	if m.settleDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(m.settleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
