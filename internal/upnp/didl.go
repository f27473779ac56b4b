package upnp

import (
	"encoding/xml"
	"fmt"
	"html"
	"strings"

	"github.com/mhdawson/MqttDlnaPlay/internal/domain"
)

type didlLite struct {
	XMLName xml.Name   `xml:"DIDL-Lite"`
	Items   []didlItem `xml:"item"`
}

type didlItem struct {
	Title     string    `xml:"http://purl.org/dc/elements/1.1/ title"`
	Class     string    `xml:"class"`
	Resources []didlRes `xml:"res"`
}

type didlRes struct {
	ProtocolInfo string `xml:"protocolInfo,attr"`
	URL          string `xml:",chardata"`
}

// parseDIDLItems decodes the Result payload of a Browse response.
// Servers return the DIDL-Lite document XML-escaped inside the SOAP
// envelope, so unescape before decoding. Items without a resource URL
// are skipped.
func parseDIDLItems(result string) ([]domain.ContentItem, error) {
	payload := result
	if strings.Contains(payload, "&lt;") {
		payload = html.UnescapeString(payload)
	}
	if strings.TrimSpace(payload) == "" {
		return nil, nil
	}

	var doc didlLite
	if err := xml.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, fmt.Errorf("parse DIDL-Lite: %w", err)
	}

	var items []domain.ContentItem
	for _, item := range doc.Items {
		if len(item.Resources) == 0 {
			continue
		}
		res := item.Resources[0]
		if strings.TrimSpace(res.URL) == "" {
			continue
		}
		items = append(items, domain.ContentItem{
			Title:       item.Title,
			URL:         strings.TrimSpace(res.URL),
			ContentType: NormalizeContentType(res.ProtocolInfo),
		})
	}
	return items, nil
}

// NormalizeContentType extracts the MIME type from a DLNA protocolInfo
// string such as "http-get:*:video/mp4:DLNA.ORG_OP=01". A value that is
// already a bare MIME type passes through unchanged.
func NormalizeContentType(protocolInfo string) string {
	if !strings.HasPrefix(protocolInfo, "http-get:") {
		return protocolInfo
	}
	parts := strings.SplitN(protocolInfo, ":", 4)
	if len(parts) < 3 {
		return protocolInfo
	}
	return parts[2]
}

// BuildVideoMetadata renders the minimal DIDL-Lite document renderers
// expect alongside SetAVTransportURI.
func BuildVideoMetadata(title, mediaURL, contentType string) string {
	if contentType == "" {
		contentType = "video/mp4"
	}
	return fmt.Sprintf(
		`<DIDL-Lite xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/">`+
			`<item id="0" parentID="-1" restricted="1">`+
			`<dc:title>%s</dc:title>`+
			`<upnp:class>object.item.videoItem</upnp:class>`+
			`<res protocolInfo="http-get:*:%s:*">%s</res>`+
			`</item></DIDL-Lite>`,
		xmlEscape(title), contentType, xmlEscape(mediaURL),
	)
}
