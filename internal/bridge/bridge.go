// Package bridge routes MQTT commands to the content server and the
// renderers and reports every outcome on the response topic.
package bridge

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/mhdawson/MqttDlnaPlay/internal/discovery"
	"github.com/mhdawson/MqttDlnaPlay/internal/domain"
	"github.com/mhdawson/MqttDlnaPlay/internal/resolver"
)

const (
	responsePlaying       = "playing"
	responsePlayFailed    = "failed to play media"
	responseSearchFailed  = "failed during media search"
	responseNoNewEpisodes = "No new episodes this week"
)

type deviceDiscoverer interface {
	Discover(ctx context.Context, deviceType string, match func(*domain.DeviceDescription) bool) (*domain.DeviceDescription, error)
}

type contentBrowser interface {
	BrowseAll(ctx context.Context, endpoint, objectID string) ([]domain.ContentItem, error)
}

type rendererManager interface {
	Resolve(id string) string
	Submit(id string, task func())
	Control(ctx context.Context, id, action string) error
	LoadAndPlay(ctx context.Context, id string, item domain.ContentItem) error
}

// Config carries the command routing settings.
type Config struct {
	Topic          string
	ServerName     string
	SearchRoot     string
	WhatsNewDays   int
	ExcludedSeries []string
}

type Bridge struct {
	cfg       Config
	discovery deviceDiscoverer
	browser   contentBrowser
	renderers rendererManager
	publish   func(text string)
	activity  func(text string)
	logger    *slog.Logger
	now       func() time.Time
}

func New(cfg Config, disc deviceDiscoverer, browser contentBrowser, renderers rendererManager, publish, activity func(string), logger *slog.Logger) *Bridge {
	if publish == nil {
		publish = func(string) {}
	}
	if activity == nil {
		activity = func(string) {}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		cfg:       cfg,
		discovery: disc,
		browser:   browser,
		renderers: renderers,
		publish:   publish,
		activity:  activity,
		logger:    logger,
		now:       time.Now,
	}
}

// HandleMessage dispatches one inbound MQTT message by topic suffix.
// Unroutable messages are logged and dropped; a command never takes the
// process down.
func (b *Bridge) HandleMessage(ctx context.Context, topic string, payload []byte) {
	message := strings.TrimSpace(string(payload))

	switch {
	case topic == b.cfg.Topic+"/play":
		b.handlePlay(ctx, message)
	case topic == b.cfg.Topic+"/control":
		b.handleControl(ctx, message)
	case topic == b.cfg.Topic && strings.HasPrefix(message, "whatsnew"):
		b.handleWhatsNew(ctx)
	default:
		b.logger.Warn("unroutable_message",
			slog.String("topic", topic),
			slog.String("payload", message))
	}
}

// splitCommand separates "title[,rendererID]".
func splitCommand(message string) (query, rendererID string) {
	query, rendererID, _ = strings.Cut(message, ",")
	return strings.TrimSpace(query), strings.TrimSpace(rendererID)
}

// handlePlay queues the search and playback on the target renderer's
// worker. Commands for one renderer run in arrival order; commands for
// other renderers are not held up.
func (b *Bridge) handlePlay(ctx context.Context, message string) {
	query, rendererID := splitCommand(message)
	b.activity("play: " + message)

	id := b.renderers.Resolve(rendererID)
	b.renderers.Submit(id, func() {
		items, err := b.listContent(ctx)
		if err != nil {
			b.logger.Error("media_search_failed", slog.String("error", err.Error()))
			b.respond(responseSearchFailed)
			return
		}

		match := resolver.FindEarliestMatch(items, query, b.now())
		if match == nil {
			b.respond("No current episodes for " + query)
			return
		}

		if err := b.renderers.LoadAndPlay(ctx, id, *match); err != nil {
			b.logger.Error("playback_failed",
				slog.String("renderer", id),
				slog.String("title", match.Title),
				slog.String("error", err.Error()))
			b.respond(responsePlayFailed)
			return
		}
		b.respond(responsePlaying)
	})
}

func (b *Bridge) handleControl(ctx context.Context, message string) {
	action, rendererID := splitCommand(message)
	b.activity("control: " + message)

	id := b.renderers.Resolve(rendererID)
	b.renderers.Submit(id, func() {
		if err := b.renderers.Control(ctx, id, action); err != nil {
			b.logger.Error("control_failed",
				slog.String("renderer", id),
				slog.String("action", action),
				slog.String("error", err.Error()))
			b.activity("control failed: " + action)
		}
	})
}

func (b *Bridge) handleWhatsNew(ctx context.Context) {
	b.activity("whatsnew requested")

	items, err := b.listContent(ctx)
	if err != nil {
		b.logger.Error("media_search_failed", slog.String("error", err.Error()))
		b.respond(responseSearchFailed)
		return
	}

	series := resolver.FindNewSince(items, b.cfg.WhatsNewDays, b.cfg.ExcludedSeries, b.now())
	if len(series) == 0 {
		b.respond(responseNoNewEpisodes)
		return
	}

	names := make([]string, len(series))
	for i, token := range series {
		names[i] = strings.ReplaceAll(token, "_", " ")
	}
	b.respond(strings.Join(names, ", "))
}

// listContent finds the configured content server and lists the search
// root container.
func (b *Bridge) listContent(ctx context.Context) ([]domain.ContentItem, error) {
	desc, err := b.discovery.Discover(ctx, domain.DeviceTypeMediaServer,
		discovery.MatchContentServer(b.cfg.ServerName))
	if err != nil {
		return nil, err
	}
	svc, ok := desc.Service(domain.ServiceTypeContentDirectory)
	if !ok {
		return nil, domain.Errorf(domain.CodeBrowseFailure, "%s has no ContentDirectory service", desc.FriendlyName)
	}
	return b.browser.BrowseAll(ctx, svc.ControlURL, b.cfg.SearchRoot)
}

func (b *Bridge) respond(text string) {
	b.publish(text)
	b.activity("response: " + text)
}
