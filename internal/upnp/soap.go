package upnp

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mhdawson/MqttDlnaPlay/internal/domain"
)

const maxSOAPResponseBytes = 4 << 20

// ControlClient issues SOAP control actions against UPnP service endpoints.
type ControlClient struct {
	httpClient *http.Client
}

func NewControlClient(client *http.Client) *ControlClient {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &ControlClient{httpClient: client}
}

// call posts one SOAP action and returns the raw response envelope.
// Argument values in body must already be XML-escaped.
func (c *ControlClient) call(ctx context.Context, endpoint, serviceType, action, body string) ([]byte, error) {
	var envelope bytes.Buffer
	envelope.WriteString(xml.Header)
	envelope.WriteString(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">`)
	envelope.WriteString(`<s:Body>`)
	fmt.Fprintf(&envelope, `<u:%s xmlns:u="%s">%s</u:%s>`, action, serviceType, body, action)
	envelope.WriteString(`</s:Body></s:Envelope>`)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(envelope.Bytes()))
	if err != nil {
		return nil, domain.Errorf(domain.CodeTransportError, "%s request: %v", action, err)
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPAction", fmt.Sprintf("%q", serviceType+"#"+action))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.Errorf(domain.CodeTransportError, "%s: %v", action, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxSOAPResponseBytes))
	if err != nil {
		return nil, domain.Errorf(domain.CodeTransportError, "%s response: %v", action, err)
	}

	if resp.StatusCode != http.StatusOK || isSOAPFault(raw) {
		if code, desc, ok := parseUPnPError(raw); ok {
			return nil, domain.Errorf(domain.CodeTransportError, "%s rejected: %s (%s)", action, desc, code)
		}
		return nil, domain.Errorf(domain.CodeTransportError, "%s rejected with status %d", action, resp.StatusCode)
	}
	return raw, nil
}

func isSOAPFault(raw []byte) bool {
	return bytes.Contains(raw, []byte("Fault>"))
}

type upnpErrorEnvelope struct {
	Code        string `xml:"Body>Fault>detail>UPnPError>errorCode"`
	Description string `xml:"Body>Fault>detail>UPnPError>errorDescription"`
}

func parseUPnPError(raw []byte) (code, description string, ok bool) {
	var parsed upnpErrorEnvelope
	if err := xml.Unmarshal(raw, &parsed); err != nil {
		return "", "", false
	}
	if parsed.Code == "" && parsed.Description == "" {
		return "", "", false
	}
	return parsed.Code, parsed.Description, true
}

func xmlEscape(s string) string {
	var buf strings.Builder
	// EscapeText only fails on a writer error, which Builder never returns.
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
