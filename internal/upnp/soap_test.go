package upnp

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mhdawson/MqttDlnaPlay/internal/domain"
)

func TestSetAVTransportURISendsSOAPAction(t *testing.T) {
	var gotAction string
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAction = r.Header.Get("SOAPAction")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.Write([]byte(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body><u:SetAVTransportURIResponse xmlns:u="urn:schemas-upnp-org:service:AVTransport:1"/></s:Body></s:Envelope>`))
	}))
	defer srv.Close()

	client := NewControlClient(srv.Client())
	err := client.SetAVTransportURI(context.Background(), srv.URL, "http://10.0.0.5/video.mp4?a=1&b=2", "<DIDL-Lite/>")
	if err != nil {
		t.Fatalf("set uri: %v", err)
	}

	if want := `"urn:schemas-upnp-org:service:AVTransport:1#SetAVTransportURI"`; gotAction != want {
		t.Fatalf("SOAPAction = %q, want %q", gotAction, want)
	}
	if !strings.Contains(gotBody, "http://10.0.0.5/video.mp4?a=1&amp;b=2") {
		t.Fatalf("media URL not escaped in body: %s", gotBody)
	}
	if !strings.Contains(gotBody, "&lt;DIDL-Lite/&gt;") {
		t.Fatalf("metadata not escaped in body: %s", gotBody)
	}
}

func TestCallSurfacesUPnPFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body><s:Fault>
			<faultcode>s:Client</faultcode><faultstring>UPnPError</faultstring>
			<detail><UPnPError xmlns="urn:schemas-upnp-org:control-1-0">
			<errorCode>716</errorCode><errorDescription>Resource not found</errorDescription>
			</UPnPError></detail></s:Fault></s:Body></s:Envelope>`))
	}))
	defer srv.Close()

	client := NewControlClient(srv.Client())
	err := client.Play(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected fault to surface as error")
	}
	if domain.ErrorCode(err) != domain.CodeTransportError {
		t.Fatalf("unexpected error code %q", domain.ErrorCode(err))
	}
	if !strings.Contains(err.Error(), "Resource not found") {
		t.Fatalf("error lost the UPnP description: %v", err)
	}
}

func TestSeekFormatsRelTime(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.Write([]byte(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body><u:SeekResponse xmlns:u="urn:schemas-upnp-org:service:AVTransport:1"/></s:Body></s:Envelope>`))
	}))
	defer srv.Close()

	client := NewControlClient(srv.Client())
	if err := client.Seek(context.Background(), srv.URL, 42*time.Minute); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if !strings.Contains(gotBody, "<Target>0:42:00</Target>") {
		t.Fatalf("unexpected seek target in body: %s", gotBody)
	}
	if !strings.Contains(gotBody, "<Unit>REL_TIME</Unit>") {
		t.Fatalf("seek unit missing: %s", gotBody)
	}
}

func TestFormatRelTime(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00:00"},
		{90 * time.Second, "0:01:30"},
		{2*time.Hour + 5*time.Minute + 9*time.Second, "2:05:09"},
		{-time.Minute, "0:00:00"},
	}
	for _, tc := range cases {
		if got := formatRelTime(tc.in); got != tc.want {
			t.Fatalf("formatRelTime(%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTransportState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body>
			<u:GetTransportInfoResponse xmlns:u="urn:schemas-upnp-org:service:AVTransport:1">
			<CurrentTransportState>PLAYING</CurrentTransportState>
			<CurrentTransportStatus>OK</CurrentTransportStatus>
			<CurrentSpeed>1</CurrentSpeed>
			</u:GetTransportInfoResponse></s:Body></s:Envelope>`))
	}))
	defer srv.Close()

	client := NewControlClient(srv.Client())
	state, err := client.TransportState(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("transport state: %v", err)
	}
	if state != "PLAYING" {
		t.Fatalf("unexpected state %q", state)
	}
}
