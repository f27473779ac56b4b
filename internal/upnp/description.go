package upnp

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/mhdawson/MqttDlnaPlay/internal/domain"
)

const maxDescriptionBytes = 1 << 20

type descriptionDocument struct {
	XMLName xml.Name          `xml:"root"`
	Device  descriptionDevice `xml:"device"`
}

type descriptionDevice struct {
	DeviceType   string               `xml:"deviceType"`
	FriendlyName string               `xml:"friendlyName"`
	UDN          string               `xml:"UDN"`
	Services     []descriptionService `xml:"serviceList>service"`
}

type descriptionService struct {
	ServiceType string `xml:"serviceType"`
	ServiceID   string `xml:"serviceId"`
	ControlURL  string `xml:"controlURL"`
}

// FetchDescription downloads and parses the device description document
// advertised at an SSDP LOCATION URL. Control URLs are resolved against
// the location so callers always see absolute endpoints.
func FetchDescription(ctx context.Context, client *http.Client, location string) (*domain.DeviceDescription, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("description request %s: %w", location, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch description %s: %w", location, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch description %s: unexpected status %d", location, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDescriptionBytes))
	if err != nil {
		return nil, fmt.Errorf("read description %s: %w", location, err)
	}

	var doc descriptionDocument
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse description %s: %w", location, err)
	}

	base, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse location %s: %w", location, err)
	}

	desc := &domain.DeviceDescription{
		Location:     location,
		DeviceType:   doc.Device.DeviceType,
		FriendlyName: doc.Device.FriendlyName,
		UDN:          doc.Device.UDN,
	}
	for _, svc := range doc.Device.Services {
		controlURL := svc.ControlURL
		if rel, err := url.Parse(svc.ControlURL); err == nil {
			controlURL = base.ResolveReference(rel).String()
		}
		desc.Services = append(desc.Services, domain.ServiceEntry{
			Type:       svc.ServiceType,
			ID:         svc.ServiceID,
			ControlURL: controlURL,
		})
	}
	return desc, nil
}
