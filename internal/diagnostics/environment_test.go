package diagnostics

import (
	"errors"
	"os"
	"testing"

	"github.com/mhdawson/MqttDlnaPlay/internal/config"
)

func baseConfig(brokerURL string) *config.Config {
	return &config.Config{
		MQTT: config.MQTT{
			BrokerURL: brokerURL,
			Topic:     "house/dlnaplay",
			TLS: config.TLS{
				CertFile: "/etc/bridge/client.cert",
				KeyFile:  "/etc/bridge/client.key",
				CAFile:   "/etc/bridge/ca.cert",
			},
		},
		Renderers: []config.Renderer{{ID: "0", Name: "[TV]Samsung"}},
	}
}

func TestDetectEnvironmentPlainBroker(t *testing.T) {
	origStat := statFile
	t.Cleanup(func() {
		statFile = origStat
	})
	statFile = func(path string) (os.FileInfo, error) {
		t.Fatalf("stat must not run without TLS, got %q", path)
		return nil, nil
	}

	report := DetectEnvironment(baseConfig("tcp://broker:1883"))

	if report.TLSRequired {
		t.Fatal("tcp scheme must not require TLS")
	}
	if !report.MulticastSocket {
		t.Fatal("expected a UDP socket to open")
	}
	if !report.Ready {
		t.Fatalf("expected ready report, got %+v", report)
	}
}

func TestDetectEnvironmentMissingTLSMaterial(t *testing.T) {
	origStat := statFile
	t.Cleanup(func() {
		statFile = origStat
	})
	statFile = func(path string) (os.FileInfo, error) {
		if path == "/etc/bridge/client.key" {
			return nil, errors.New("no such file")
		}
		return nil, nil
	}

	report := DetectEnvironment(baseConfig("mqtts://broker:8883"))

	if !report.TLSRequired {
		t.Fatal("mqtts scheme must require TLS")
	}
	if !report.TLSCert.Found || report.TLSKey.Found || !report.TLSCA.Found {
		t.Fatalf("unexpected file statuses: %+v", report)
	}
	if report.Ready {
		t.Fatal("missing key must make the report not ready")
	}
}
