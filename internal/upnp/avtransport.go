package upnp

import (
	"context"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/mhdawson/MqttDlnaPlay/internal/domain"
)

// SetAVTransportURI points the renderer at a media URL. metadata is a
// DIDL-Lite document describing the item, or empty.
func (c *ControlClient) SetAVTransportURI(ctx context.Context, endpoint, mediaURL, metadata string) error {
	body := fmt.Sprintf(
		"<InstanceID>0</InstanceID><CurrentURI>%s</CurrentURI><CurrentURIMetaData>%s</CurrentURIMetaData>",
		xmlEscape(mediaURL), xmlEscape(metadata),
	)
	_, err := c.call(ctx, endpoint, domain.ServiceTypeAVTransport, "SetAVTransportURI", body)
	return err
}

func (c *ControlClient) Play(ctx context.Context, endpoint string) error {
	_, err := c.call(ctx, endpoint, domain.ServiceTypeAVTransport, "Play",
		"<InstanceID>0</InstanceID><Speed>1</Speed>")
	return err
}

func (c *ControlClient) Pause(ctx context.Context, endpoint string) error {
	_, err := c.call(ctx, endpoint, domain.ServiceTypeAVTransport, "Pause",
		"<InstanceID>0</InstanceID>")
	return err
}

func (c *ControlClient) Stop(ctx context.Context, endpoint string) error {
	_, err := c.call(ctx, endpoint, domain.ServiceTypeAVTransport, "Stop",
		"<InstanceID>0</InstanceID>")
	return err
}

// Seek jumps to an absolute offset from the start of the current track.
func (c *ControlClient) Seek(ctx context.Context, endpoint string, offset time.Duration) error {
	body := fmt.Sprintf(
		"<InstanceID>0</InstanceID><Unit>REL_TIME</Unit><Target>%s</Target>",
		formatRelTime(offset),
	)
	_, err := c.call(ctx, endpoint, domain.ServiceTypeAVTransport, "Seek", body)
	return err
}

// TransportState returns CurrentTransportState from GetTransportInfo,
// e.g. PLAYING, PAUSED_PLAYBACK or STOPPED.
func (c *ControlClient) TransportState(ctx context.Context, endpoint string) (string, error) {
	raw, err := c.call(ctx, endpoint, domain.ServiceTypeAVTransport, "GetTransportInfo",
		"<InstanceID>0</InstanceID>")
	if err != nil {
		return "", err
	}

	var parsed struct {
		State string `xml:"Body>GetTransportInfoResponse>CurrentTransportState"`
	}
	if err := xml.Unmarshal(raw, &parsed); err != nil {
		return "", domain.Errorf(domain.CodeTransportError, "GetTransportInfo parse: %v", err)
	}
	return parsed.State, nil
}

func formatRelTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
