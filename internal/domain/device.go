package domain

const (
	DeviceTypeMediaServer   = "urn:schemas-upnp-org:device:MediaServer:1"
	DeviceTypeMediaRenderer = "urn:schemas-upnp-org:device:MediaRenderer:1"

	ServiceTypeContentDirectory = "urn:schemas-upnp-org:service:ContentDirectory:1"
	ServiceTypeAVTransport      = "urn:schemas-upnp-org:service:AVTransport:1"
)

// DeviceDescription is the parsed form of a UPnP device description
// document fetched from an SSDP LOCATION URL.
type DeviceDescription struct {
	Location     string         `json:"location"`
	DeviceType   string         `json:"device_type"`
	FriendlyName string         `json:"friendly_name"`
	UDN          string         `json:"udn"`
	Services     []ServiceEntry `json:"services"`
}

type ServiceEntry struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	ControlURL string `json:"control_url"`
}

// Service returns the first service entry of the given type.
func (d *DeviceDescription) Service(serviceType string) (ServiceEntry, bool) {
	for _, svc := range d.Services {
		if svc.Type == serviceType {
			return svc, true
		}
	}
	return ServiceEntry{}, false
}

func (d *DeviceDescription) HasService(serviceType string) bool {
	_, ok := d.Service(serviceType)
	return ok
}
