// Package model defines shared data structures.
package model

import "time"

// Subscription represents one subscribed feed and where its articles go.
type Subscription struct {
	URL       string // feed URL, or item URL for a remote subscription id
	Mailbox   string // destination mailbox file
	CachePath string // seen-article cache file, empty when dedup is disabled
	StatePath string // conditional-fetch state file, empty when disabled
}

// ConditionalState holds the cache validators from the last successful fetch.
// The zero value means "fetch unconditionally".
type ConditionalState struct {
	ETag     string `json:"etag"`
	Modified string `json:"modified"`
}

// ContentEntry is one typed content body attached to an item.
type ContentEntry struct {
	Type  string
	Value string
}

// Enclosure references an external media file attached to an item.
type Enclosure struct {
	URL  string
	Type string
}

// Item represents a single article/entry from a feed.
type Item struct {
	Title       string
	Link        string
	GUID        string // identifier from feed, may be empty
	Description string
	Content     []ContentEntry
	Enclosures  []Enclosure
	Published   *time.Time // nil when the feed supplied no usable date
}

// Document is a parsed feed together with its HTTP-level metadata.
type Document struct {
	Title    string
	Link     string
	Items    []Item
	ETag     string // refreshed validator, empty if the server sent none
	Modified string // refreshed Last-Modified value
}

// Message is one mailbox message, immutable once constructed.
type Message struct {
	From         string
	To           string
	Subject      string
	MessageID    string
	Date         time.Time
	ContentType  string
	Charset      string
	Link         string // article link, empty for error reports
	EnclosureURL string // first enclosure URL, empty when none
	Body         string
	GUID         string // dedup identifier, empty for error reports
}
