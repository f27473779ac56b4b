package upnp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"time"
)

const (
	multicastAddress = "239.255.255.250:1900"
	readChunk        = 250 * time.Millisecond
)

// SearchResponse is one parsed unicast reply to an M-SEARCH.
type SearchResponse struct {
	Location string
	ST       string
	USN      string
	Server   string
}

// Search sends a single M-SEARCH for the given search target and invokes
// fn for every well-formed response that arrives before ctx is done.
// fn runs on the read loop goroutine and must not block.
func Search(ctx context.Context, target string, fn func(SearchResponse)) error {
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return fmt.Errorf("ssdp listen: %w", err)
	}
	defer conn.Close()

	dst, err := net.ResolveUDPAddr("udp4", multicastAddress)
	if err != nil {
		return fmt.Errorf("ssdp resolve: %w", err)
	}

	request := strings.Join([]string{
		"M-SEARCH * HTTP/1.1",
		"HOST: " + multicastAddress,
		`MAN: "ssdp:discover"`,
		"MX: 3",
		"ST: " + target,
		"", "",
	}, "\r\n")
	if _, err := conn.WriteTo([]byte(request), dst); err != nil {
		return fmt.Errorf("ssdp send: %w", err)
	}

	buf := make([]byte, 8192)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(readChunk)); err != nil {
			return fmt.Errorf("ssdp deadline: %w", err)
		}
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ssdp read: %w", err)
		}

		if resp, ok := parseSearchResponse(buf[:n]); ok {
			fn(resp)
		}
	}
}

func parseSearchResponse(raw []byte) (SearchResponse, bool) {
	reader := bufio.NewReader(bytes.NewReader(raw))
	statusLine, err := reader.ReadString('\n')
	if err != nil {
		return SearchResponse{}, false
	}
	if !strings.Contains(statusLine, "200") {
		return SearchResponse{}, false
	}

	headers, err := textproto.NewReader(reader).ReadMIMEHeader()
	if err != nil {
		return SearchResponse{}, false
	}

	resp := SearchResponse{
		Location: headers.Get("Location"),
		ST:       headers.Get("ST"),
		USN:      headers.Get("USN"),
		Server:   headers.Get("Server"),
	}
	if resp.Location == "" {
		return SearchResponse{}, false
	}
	return resp, true
}
