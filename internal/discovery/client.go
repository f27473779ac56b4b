package discovery

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mhdawson/MqttDlnaPlay/internal/domain"
	"github.com/mhdawson/MqttDlnaPlay/internal/upnp"
)

// Swap points for tests.
var (
	searchNetwork    = upnp.Search
	fetchDescription = upnp.FetchDescription
)

// Client resolves devices on the local network with a single bounded
// SSDP search round per call. Nothing is cached here; callers own any
// caching policy.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		logger:     logger,
	}
}

// Discover runs one search round for deviceType and returns the first
// device whose description satisfies match. Responders that fail to
// serve a description, or whose description does not match, are skipped.
// Late responses arriving after a match are discarded. When nothing
// matches before the round's deadline the call fails with
// DISCOVERY_TIMEOUT.
func (c *Client) Discover(ctx context.Context, deviceType string, match func(*domain.DeviceDescription) bool) (*domain.DeviceDescription, error) {
	searchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		done     atomic.Bool
		seenMu   sync.Mutex
		seen     = make(map[string]bool)
		found    = make(chan *domain.DeviceDescription, 1)
		searchCh = make(chan error, 1)
	)

	go func() {
		searchCh <- searchNetwork(searchCtx, deviceType, func(resp upnp.SearchResponse) {
			if done.Load() {
				return
			}
			seenMu.Lock()
			duplicate := seen[resp.Location]
			seen[resp.Location] = true
			seenMu.Unlock()
			if duplicate {
				return
			}

			go func() {
				desc, err := fetchDescription(searchCtx, c.httpClient, resp.Location)
				if err != nil {
					if searchCtx.Err() == nil {
						c.logger.Debug("device_description_failed",
							slog.String("location", resp.Location),
							slog.String("error", err.Error()))
					}
					return
				}
				if done.Load() || !match(desc) {
					return
				}
				if done.CompareAndSwap(false, true) {
					found <- desc
					cancel()
				}
			}()
		})
	}()

	for {
		select {
		case desc := <-found:
			return desc, nil
		case err := <-searchCh:
			searchCh = nil
			if err != nil && searchCtx.Err() == nil {
				return nil, domain.Errorf(domain.CodeTransportError, "ssdp search %s: %v", deviceType, err)
			}
		case <-searchCtx.Done():
			// A match can race the deadline; prefer the match.
			select {
			case desc := <-found:
				return desc, nil
			default:
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, domain.Errorf(domain.CodeDiscoveryTimeout, "no %s matched within %s", deviceType, c.timeout)
		}
	}
}

// MatchContentServer selects a media server by exact friendlyName that
// exposes a ContentDirectory service.
func MatchContentServer(name string) func(*domain.DeviceDescription) bool {
	return func(desc *domain.DeviceDescription) bool {
		return desc.FriendlyName == name && desc.HasService(domain.ServiceTypeContentDirectory)
	}
}

// MatchRenderer selects a media renderer by friendlyName prefix, with
// an optional exact UDN pin, that exposes an AVTransport service.
func MatchRenderer(namePrefix, udn string) func(*domain.DeviceDescription) bool {
	return func(desc *domain.DeviceDescription) bool {
		if !strings.HasPrefix(desc.FriendlyName, namePrefix) {
			return false
		}
		if udn != "" && desc.UDN != udn {
			return false
		}
		return desc.HasService(domain.ServiceTypeAVTransport)
	}
}
