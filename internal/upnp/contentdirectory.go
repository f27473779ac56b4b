package upnp

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/mhdawson/MqttDlnaPlay/internal/domain"
)

const browsePageSize = 200

type BrowsePage struct {
	Items          []domain.ContentItem
	NumberReturned int
	TotalMatches   int
}

// Browse lists the direct children of a ContentDirectory container.
func (c *ControlClient) Browse(ctx context.Context, endpoint, objectID string, start, count int) (*BrowsePage, error) {
	body := fmt.Sprintf(
		"<ObjectID>%s</ObjectID>"+
			"<BrowseFlag>BrowseDirectChildren</BrowseFlag>"+
			"<Filter>*</Filter>"+
			"<StartingIndex>%d</StartingIndex>"+
			"<RequestedCount>%d</RequestedCount>"+
			"<SortCriteria></SortCriteria>",
		xmlEscape(objectID), start, count,
	)

	raw, err := c.call(ctx, endpoint, domain.ServiceTypeContentDirectory, "Browse", body)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Result         string `xml:"Body>BrowseResponse>Result"`
		NumberReturned int    `xml:"Body>BrowseResponse>NumberReturned"`
		TotalMatches   int    `xml:"Body>BrowseResponse>TotalMatches"`
	}
	if err := xml.Unmarshal(raw, &parsed); err != nil {
		return nil, domain.Errorf(domain.CodeBrowseFailure, "browse %s: malformed response: %v", objectID, err)
	}

	items, err := parseDIDLItems(parsed.Result)
	if err != nil {
		return nil, domain.Errorf(domain.CodeBrowseFailure, "browse %s: %v", objectID, err)
	}
	return &BrowsePage{
		Items:          items,
		NumberReturned: parsed.NumberReturned,
		TotalMatches:   parsed.TotalMatches,
	}, nil
}

// BrowseAll pages through a container until the server reports no more
// matches. Containers nested under objectID are not descended into.
func (c *ControlClient) BrowseAll(ctx context.Context, endpoint, objectID string) ([]domain.ContentItem, error) {
	var items []domain.ContentItem
	for start := 0; ; {
		page, err := c.Browse(ctx, endpoint, objectID, start, browsePageSize)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)

		start += page.NumberReturned
		if page.NumberReturned == 0 || (page.TotalMatches > 0 && start >= page.TotalMatches) {
			return items, nil
		}
	}
}
