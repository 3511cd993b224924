package session

import (
	"fmt"
	"net/url"
	"strings"
)

// Location is the shareable navigation state carried in the query string,
// for example "note=recipes%2FPad%20Thai.md&mode=view".
type Location struct {
	Path string
	Mode Mode
}

// Encode renders the location as a query string. Path segments are escaped
// individually so slashes keep separating segments while every reserved
// character inside a segment survives a round trip. An empty location
// encodes to the empty string.
func (l Location) Encode() string {
	if l.Path == "" {
		return ""
	}
	mode := l.Mode
	if !mode.persisted() {
		mode = ModeView
	}
	return "note=" + escapePath(l.Path) + "&mode=" + mode.String()
}

// ParseLocation decodes a query string produced by Encode or typed by hand.
// A missing note parameter yields the empty location; a missing or unknown
// mode falls back to view.
func ParseLocation(query string) (Location, error) {
	values, err := url.ParseQuery(query)
	if err != nil {
		return Location{}, fmt.Errorf("session: parse location: %w", err)
	}
	loc := Location{Path: values.Get("note"), Mode: ModeView}
	if loc.Path == "" {
		return Location{}, nil
	}
	if m, err := ParseMode(values.Get("mode")); err == nil {
		loc.Mode = m
	}
	return loc, nil
}

func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = url.QueryEscape(seg)
	}
	return strings.Join(segments, "/")
}
