package subscription

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// opml represents the root of an OPML subscription listing.
type opml struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Body    opmlBody `xml:"body"`
}

type opmlBody struct {
	Outlines []outline `xml:"outline"`
}

// outline is a single outline element: a group when it has no xmlUrl, a
// subscription when it does. The service annotates subscriptions with an
// opaque id and an unread count.
type outline struct {
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr"`
	XMLURL   string    `xml:"xmlUrl,attr"`
	SubID    string    `xml:"BloglinesSubId,attr"`
	Unread   int       `xml:"BloglinesUnread,attr"`
	Outlines []outline `xml:"outline"`
}

// Unread is one subscription with pending items and its destination mailbox.
type Unread struct {
	SubID   string
	Mailbox string
}

// ParseListing reads an OPML subscription listing and returns the
// subscriptions holding unread items. The mailbox name is derived from the
// containing group's title, lower-cased and prefixed with "in_".
func ParseListing(r io.Reader) ([]Unread, error) {
	var doc opml
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode subscription listing: %w", err)
	}

	var unread []Unread
	var walk func(outlines []outline, mailbox string)
	walk = func(outlines []outline, mailbox string) {
		for _, o := range outlines {
			if o.XMLURL != "" {
				if o.Unread > 0 && o.SubID != "" {
					unread = append(unread, Unread{SubID: o.SubID, Mailbox: mailbox})
				}
				continue
			}
			name := o.Title
			if name == "" {
				name = o.Text
			}
			walk(o.Outlines, "in_"+strings.ToLower(name))
		}
	}
	walk(doc.Body.Outlines, "in_")
	return unread, nil
}
