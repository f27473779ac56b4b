package diagnostics

import (
	"net"
	"os"

	"github.com/mhdawson/MqttDlnaPlay/internal/config"
)

var (
	statFile      = os.Stat
	listenUDP     = net.ListenPacket
	udpProbeAddr  = ":0"
	udpProbeProto = "udp4"
)

type FileStatus struct {
	Path  string `json:"path,omitempty"`
	Found bool   `json:"found"`
}

// EnvironmentReport summarizes whether this host can run the bridge:
// the TLS material referenced by the config is present and a UDP
// socket for SSDP can be opened.
type EnvironmentReport struct {
	MulticastSocket bool       `json:"multicast_socket"`
	TLSRequired     bool       `json:"tls_required"`
	TLSCert         FileStatus `json:"tls_cert"`
	TLSKey          FileStatus `json:"tls_key"`
	TLSCA           FileStatus `json:"tls_ca"`
	RendererCount   int        `json:"renderer_count"`
	Ready           bool       `json:"ready"`
}

func DetectEnvironment(cfg *config.Config) EnvironmentReport {
	report := EnvironmentReport{
		TLSRequired:   cfg.MQTT.UsesTLS(),
		RendererCount: len(cfg.Renderers),
	}

	if conn, err := listenUDP(udpProbeProto, udpProbeAddr); err == nil {
		report.MulticastSocket = true
		conn.Close()
	}

	report.Ready = report.MulticastSocket && report.RendererCount > 0
	if report.TLSRequired {
		report.TLSCert = detectFile(cfg.MQTT.TLS.CertFile)
		report.TLSKey = detectFile(cfg.MQTT.TLS.KeyFile)
		report.TLSCA = detectFile(cfg.MQTT.TLS.CAFile)
		report.Ready = report.Ready && report.TLSCert.Found && report.TLSKey.Found && report.TLSCA.Found
	}
	return report
}

func detectFile(path string) FileStatus {
	if path == "" {
		return FileStatus{Found: false}
	}
	if _, err := statFile(path); err != nil {
		return FileStatus{Path: path, Found: false}
	}
	return FileStatus{Path: path, Found: true}
}
