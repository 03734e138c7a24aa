// Package transform converts raw feed items into mailbox messages.
package transform

import (
	"crypto/md5"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jerobins/syngen/internal/model"
	"github.com/jerobins/syngen/internal/textutil"
)

// Fixed message addressing. The sender is synthetic; the recipient is whatever
// mail client ends up reading the mailbox.
const (
	SenderAddress = "SynGen@SynGen.rss"
	recipient     = `"RSS eMail Reader" <blogger@SynGen.rss>`
	errorFrom     = `"SynGen RSS Aggregator" <SynGen@SynGen.rss>`
	errorSubject  = "Error in RSS Feed"

	validatorURL = "http://www.feedvalidator.org/check?url="

	noDescription = "(none provided)"
	untitledFeed  = "(untitled)"
)

// Transformer derives mailbox messages for one feed's items.
type Transformer struct {
	feedTitle string
	feedLink  string
	now       time.Time // run start, fallback publish date
}

// New creates a transformer for a feed. The feed title is normalized once:
// newline-collapsed, entity-decoded, trimmed, defaulting to "(untitled)".
func New(feedTitle, feedLink string, now time.Time) Transformer {
	title := feedTitle
	if title == "" {
		title = untitledFeed
	}
	title = textutil.CollapseNewlines(strings.TrimSpace(title))
	title = textutil.DecodeEntities(title)
	return Transformer{feedTitle: title, feedLink: feedLink, now: now}
}

// FeedTitle returns the normalized display title.
func (t Transformer) FeedTitle() string {
	return t.feedTitle
}

// Message derives the mailbox message for one item. Every field falls back
// along a fixed chain so a sparse item still yields a deliverable message.
func (t Transformer) Message(item model.Item) model.Message {
	date := t.now
	if item.Published != nil {
		date = *item.Published
	}

	desc := deriveBody(item)

	title := textutil.StripMarkup(item.Title)
	if title == "" {
		title = textutil.FirstWords(textutil.StripMarkup(desc), textutil.DefaultWordLimit) + "..."
	}
	title = strings.TrimSpace(textutil.DecodeEntities(title))

	link := item.Link
	if link == "" {
		link = strings.TrimSpace(item.GUID)
	}
	if link == "" {
		link = t.feedLink
	}

	guid := strings.TrimSpace(item.GUID)
	if guid == "" {
		guid = contentHash(desc)
	}

	var enclosureURL string
	if len(item.Enclosures) > 0 {
		enclosureURL = item.Enclosures[0].URL
	}

	var body strings.Builder
	body.WriteString(`<h4><a href="` + link + `">` + title + "</a></h4>\n<p>\n")
	body.WriteString(desc + "\n</p>\n")
	if enclosureURL != "" {
		body.WriteString(`<p>[<a href="` + enclosureURL + `">Enclosure</a>]</p>`)
	}

	return model.Message{
		From:         `"` + t.feedTitle + `" <` + SenderAddress + `>`,
		To:           recipient,
		Subject:      title,
		MessageID:    "<" + guid + "@" + t.feedLink + ">",
		Date:         date,
		ContentType:  "text/html",
		Charset:      "utf-8",
		Link:         link,
		EnclosureURL: enclosureURL,
		Body:         body.String(),
		GUID:         guid,
	}
}

// ErrorMessage synthesizes the report delivered to a feed's mailbox when the
// feed itself cannot be processed. Error text can originate from arbitrary
// exception strings, so the message stays in a single-byte charset.
func ErrorMessage(feedURL, detail string, now time.Time) model.Message {
	body := "Problem parsing XML feed data.\n" +
		"Feed URL: " + feedURL + "\n" +
		"Error Detail: " + detail + "\n" +
		"Check with Feed Validator: " + validatorURL + url.QueryEscape(feedURL) + "\n"

	return model.Message{
		From:        errorFrom,
		To:          recipient,
		Subject:     errorSubject,
		MessageID:   "<" + feedURL + "@feederror.syngen.rss>",
		Date:        now,
		ContentType: "text/plain",
		Charset:     "iso-8859-1",
		Body:        body,
	}
}

// deriveBody picks the item's body text: the first HTML or XHTML content
// entry wins outright, otherwise the last content entry seen is retained.
// Items with no content entries fall back to the description field, then to a
// literal placeholder.
func deriveBody(item model.Item) string {
	desc := ""
	for _, entry := range item.Content {
		desc = entry.Value
		if entry.Type == "text/html" || entry.Type == "application/xhtml+xml" {
			break
		}
	}
	if desc == "" {
		desc = item.Description
	}
	if desc == "" {
		desc = noDescription
	}
	return desc
}

// contentHash derives a stable identifier from the body text. The text is
// reduced to its ASCII bytes first, dropping anything else, so exotic input
// can never fail to hash; existing cache files keep matching.
func contentHash(text string) string {
	ascii := make([]byte, 0, len(text))
	for i := 0; i < len(text); i++ {
		if text[i] < utf8.RuneSelf {
			ascii = append(ascii, text[i])
		}
	}
	return fmt.Sprintf("%x", md5.Sum(ascii))
}
