package domain

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const mapBBoxMargin = 0.01

// WhatsAppLink builds the prefilled contact deep link for a listing.
// Requires the seller phone snapshot to be present; the message template
// carries the listing title and id so the seller knows what the inquiry
// is about.
func WhatsAppLink(l *Listing) (string, error) {
	phone := strings.TrimSpace(l.SellerPhone)
	if phone == "" {
		return "", fmt.Errorf("%w: listing has no seller phone", ErrInvalidInput)
	}
	message := fmt.Sprintf("Hi, I'm interested in the %s (Listing ID: %s). Is it still available?", l.Title(), l.ID)
	return fmt.Sprintf("https://wa.me/%s?text=%s", url.QueryEscape(phone), url.QueryEscape(message)), nil
}

// MapEmbed is the read-only map view for a listing with coordinates.
type MapEmbed struct {
	EmbedURL    string  `json:"embed_url"`
	ExternalURL string  `json:"external_url"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
}

// MapEmbedFor derives the embedded map for a listing: an OpenStreetMap
// bounding box of (lng±0.01, lat±0.01) with a marker at the exact
// coordinate, plus a deep link to an external map service. Returns
// false when the listing has no stored coordinate pair.
func MapEmbedFor(l *Listing) (*MapEmbed, bool) {
	if !l.HasLocation() {
		return nil, false
	}
	lat := *l.LocationLat
	lng := *l.LocationLng

	bbox := strings.Join([]string{
		formatCoord(lng - mapBBoxMargin),
		formatCoord(lat - mapBBoxMargin),
		formatCoord(lng + mapBBoxMargin),
		formatCoord(lat + mapBBoxMargin),
	}, ",")
	marker := formatCoord(lat) + "," + formatCoord(lng)

	return &MapEmbed{
		EmbedURL: fmt.Sprintf(
			"https://www.openstreetmap.org/export/embed.html?bbox=%s&layer=mapnik&marker=%s",
			url.QueryEscape(bbox), url.QueryEscape(marker)),
		ExternalURL: fmt.Sprintf("https://www.google.com/maps?q=%s,%s", formatCoord(lat), formatCoord(lng)),
		Lat:         lat,
		Lng:         lng,
	}, true
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
