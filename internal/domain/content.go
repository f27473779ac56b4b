package domain

// ContentItem is a playable entry from a ContentDirectory listing.
type ContentItem struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}
