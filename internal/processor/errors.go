package processor

import "fmt"

// Kind classifies a feed-level failure.
type Kind string

const (
	// KindFetch covers transport failures where no response arrived.
	KindFetch Kind = "fetch"
	// KindHTTP covers error status codes from the feed's server.
	KindHTTP Kind = "http"
	// KindParse covers responses that could not be parsed as a feed.
	KindParse Kind = "parse"
	// KindDeliver covers failures while serializing or appending messages.
	KindDeliver Kind = "deliver"
	// KindSubscription covers failures loading the subscription list.
	KindSubscription Kind = "subscription"
)

// FeedError is a structured feed-level failure: a kind, a human-readable
// message, and the causing error when one exists.
type FeedError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *FeedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *FeedError) Unwrap() error {
	return e.Err
}

// Detail renders the failure for the synthesized error message. The format is
// deterministic so repeated failures produce identical report bodies.
func (e *FeedError) Detail() string {
	return e.Error()
}
