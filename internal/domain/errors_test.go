package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorCode(t *testing.T) {
	err := Errorf(CodeDiscoveryTimeout, "no media server within %ds", 5)
	if got := ErrorCode(err); got != CodeDiscoveryTimeout {
		t.Fatalf("ErrorCode = %q, want %q", got, CodeDiscoveryTimeout)
	}

	wrapped := fmt.Errorf("play command: %w", err)
	if got := ErrorCode(wrapped); got != CodeDiscoveryTimeout {
		t.Fatalf("ErrorCode through wrap = %q, want %q", got, CodeDiscoveryTimeout)
	}

	if got := ErrorCode(errors.New("plain")); got != "" {
		t.Fatalf("ErrorCode for plain error = %q, want empty", got)
	}
}

func TestErrDiscoveryTimeoutSentinel(t *testing.T) {
	err := Errorf(CodeDiscoveryTimeout, "no media server within 5s")
	if !errors.Is(err, ErrDiscoveryTimeout) {
		t.Fatal("timeout error did not match the sentinel")
	}

	wrapped := fmt.Errorf("play command: %w", err)
	if !errors.Is(wrapped, ErrDiscoveryTimeout) {
		t.Fatal("wrapped timeout error did not match the sentinel")
	}

	if errors.Is(Errorf(CodePlaybackFailure, "rejected"), ErrDiscoveryTimeout) {
		t.Fatal("different code matched the sentinel")
	}
	if errors.Is(errors.New("plain"), ErrDiscoveryTimeout) {
		t.Fatal("plain error matched the sentinel")
	}
}

func TestServiceLookup(t *testing.T) {
	desc := &DeviceDescription{
		Services: []ServiceEntry{
			{Type: ServiceTypeContentDirectory, ControlURL: "http://10.0.0.5/cd"},
			{Type: ServiceTypeAVTransport, ControlURL: "http://10.0.0.5/av"},
		},
	}

	svc, ok := desc.Service(ServiceTypeAVTransport)
	if !ok || svc.ControlURL != "http://10.0.0.5/av" {
		t.Fatalf("unexpected lookup result %+v ok=%v", svc, ok)
	}
	if desc.HasService("urn:schemas-upnp-org:service:RenderingControl:1") {
		t.Fatal("unexpected service reported present")
	}
}
