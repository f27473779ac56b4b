package upnp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/mhdawson/MqttDlnaPlay/internal/domain"
)

func browseEnvelope(result string, returned, total int) string {
	escaped := strings.NewReplacer("<", "&lt;", ">", "&gt;", `"`, "&quot;").Replace(result)
	return fmt.Sprintf(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body>
		<u:BrowseResponse xmlns:u="urn:schemas-upnp-org:service:ContentDirectory:1">
		<Result>%s</Result>
		<NumberReturned>%d</NumberReturned>
		<TotalMatches>%d</TotalMatches>
		<UpdateID>1</UpdateID>
		</u:BrowseResponse></s:Body></s:Envelope>`, escaped, returned, total)
}

const sampleDIDL = `<DIDL-Lite xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/">
<item id="64$1" parentID="64" restricted="1">
<dc:title>The_Series09121930-recording.mp4</dc:title>
<upnp:class>object.item.videoItem</upnp:class>
<res protocolInfo="http-get:*:video/mp4:DLNA.ORG_OP=01">http://10.0.0.5:8200/MediaItems/101.mp4</res>
</item>
<item id="64$2" parentID="64" restricted="1">
<dc:title>No resource here</dc:title>
<upnp:class>object.item.videoItem</upnp:class>
</item>
</DIDL-Lite>`

func TestBrowseParsesEscapedDIDL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(raw), "<BrowseFlag>BrowseDirectChildren</BrowseFlag>") {
			t.Errorf("missing browse flag in request: %s", raw)
		}
		if !strings.Contains(string(raw), "<ObjectID>0/Videos</ObjectID>") {
			t.Errorf("missing object id in request: %s", raw)
		}
		w.Write([]byte(browseEnvelope(sampleDIDL, 2, 2)))
	}))
	defer srv.Close()

	client := NewControlClient(srv.Client())
	page, err := client.Browse(context.Background(), srv.URL, "0/Videos", 0, 200)
	if err != nil {
		t.Fatalf("browse: %v", err)
	}

	if page.TotalMatches != 2 || page.NumberReturned != 2 {
		t.Fatalf("unexpected counts: returned=%d total=%d", page.NumberReturned, page.TotalMatches)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected resource-less item to be skipped, got %d items", len(page.Items))
	}

	item := page.Items[0]
	if item.Title != "The_Series09121930-recording.mp4" {
		t.Fatalf("unexpected title %q", item.Title)
	}
	if item.URL != "http://10.0.0.5:8200/MediaItems/101.mp4" {
		t.Fatalf("unexpected URL %q", item.URL)
	}
	if item.ContentType != "video/mp4" {
		t.Fatalf("protocolInfo not normalized: %q", item.ContentType)
	}
}

func TestBrowseAllPagesThroughContainer(t *testing.T) {
	const total = 3
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		start := 0
		if idx := strings.Index(string(raw), "<StartingIndex>"); idx >= 0 {
			rest := string(raw)[idx+len("<StartingIndex>"):]
			start, _ = strconv.Atoi(rest[:strings.Index(rest, "<")])
		}
		if start >= total {
			w.Write([]byte(browseEnvelope("", 0, total)))
			return
		}
		didl := fmt.Sprintf(`<DIDL-Lite xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/" xmlns:dc="http://purl.org/dc/elements/1.1/">
			<item id="%d" parentID="64" restricted="1"><dc:title>item_%d</dc:title>
			<res protocolInfo="http-get:*:video/mp4:*">http://10.0.0.5/item%d.mp4</res></item></DIDL-Lite>`, start, start, start)
		w.Write([]byte(browseEnvelope(didl, 1, total)))
	}))
	defer srv.Close()

	client := NewControlClient(srv.Client())
	items, err := client.BrowseAll(context.Background(), srv.URL, "64")
	if err != nil {
		t.Fatalf("browse all: %v", err)
	}
	if len(items) != total {
		t.Fatalf("expected %d items, got %d", total, len(items))
	}
	for i, item := range items {
		if want := fmt.Sprintf("item_%d", i); item.Title != want {
			t.Fatalf("pages out of order: items[%d].Title = %q", i, item.Title)
		}
	}
}

func TestBrowseMalformedResultIsBrowseFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(browseEnvelope("<DIDL-Lite><item>", 1, 1)))
	}))
	defer srv.Close()

	client := NewControlClient(srv.Client())
	_, err := client.Browse(context.Background(), srv.URL, "0", 0, 10)
	if err == nil {
		t.Fatal("expected malformed DIDL to fail")
	}
	if domain.ErrorCode(err) != domain.CodeBrowseFailure {
		t.Fatalf("unexpected error code %q", domain.ErrorCode(err))
	}
}

func TestNormalizeContentType(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"http-get:*:video/mp4:*", "video/mp4"},
		{"http-get:*:video/x-matroska:DLNA.ORG_OP=01;DLNA.ORG_CI=0", "video/x-matroska"},
		{"video/mp4", "video/mp4"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeContentType(tc.in); got != tc.want {
			t.Fatalf("NormalizeContentType(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBuildVideoMetadataEscapesTitle(t *testing.T) {
	metadata := BuildVideoMetadata(`Tom & Jerry's "Best"`, "http://10.0.0.5/a.mp4", "video/mp4")
	if !strings.Contains(metadata, "Tom &amp; Jerry") {
		t.Fatalf("title not escaped: %s", metadata)
	}
	if !strings.Contains(metadata, "object.item.videoItem") {
		t.Fatalf("missing upnp class: %s", metadata)
	}
	if !strings.Contains(metadata, `protocolInfo="http-get:*:video/mp4:*"`) {
		t.Fatalf("missing protocolInfo: %s", metadata)
	}
}
