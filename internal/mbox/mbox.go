// Package mbox serializes messages and appends them to mbox-format mailbox
// files under an exclusive advisory lock.
package mbox

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/textproto"
	"golang.org/x/sys/unix"

	"github.com/jerobins/syngen/internal/model"
	"github.com/jerobins/syngen/internal/transform"
)

// Serialize renders msg as one mbox entry: a Unix "From " separator line, the
// RFC-822 message, and a trailing blank line.
func Serialize(msg model.Message) (string, error) {
	var h message.Header
	h.Set("From", msg.From)
	h.Set("To", msg.To)
	h.Set("Subject", msg.Subject)
	if msg.Link != "" {
		h.Set("X-RSS-Link", msg.Link)
	}
	if msg.EnclosureURL != "" {
		h.Set("X-RSS-Enclosure", msg.EnclosureURL)
	}
	h.Set("Message-ID", msg.MessageID)
	h.Set("Date", msg.Date.UTC().Format(time.RFC1123Z))
	h.Set("Content-Type", fmt.Sprintf("%s; charset=%s", msg.ContentType, msg.Charset))

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From %s %s\n", transform.SenderAddress, msg.Date.UTC().Format(time.ANSIC))

	if strings.EqualFold(msg.Charset, "iso-8859-1") {
		// message.CreateWriter only accepts utf-8 and us-ascii on the write
		// side, so latin-1 entries get their header written directly and the
		// narrowed body appended as-is.
		if err := textproto.WriteHeader(&buf, h.Header); err != nil {
			return "", fmt.Errorf("write message header: %w", err)
		}
		buf.WriteString(encodeLatin1(msg.Body))
	} else {
		w, err := message.CreateWriter(&buf, h)
		if err != nil {
			return "", fmt.Errorf("create message writer: %w", err)
		}
		if _, err := w.Write([]byte(msg.Body)); err != nil {
			w.Close()
			return "", fmt.Errorf("write message body: %w", err)
		}
		if err := w.Close(); err != nil {
			return "", fmt.Errorf("finish message: %w", err)
		}
	}

	buf.WriteString("\n\n")
	return buf.String(), nil
}

// encodeLatin1 narrows text to ISO-8859-1 bytes, substituting '?' for any
// rune outside the charset. Error detail can contain arbitrary text of
// unknown origin; narrowing must never fail.
func encodeLatin1(text string) string {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		if r > 0xFF {
			out = append(out, '?')
			continue
		}
		out = append(out, byte(r))
	}
	return string(out)
}

// Appender performs lock-protected appends to mailbox files. When DryRun is
// set nothing touches disk.
type Appender struct {
	DryRun bool
}

// Append opens the mailbox for appending, takes an exclusive advisory lock,
// writes data in full, and releases the lock before any error propagates.
// Batching several serialized messages into one call keeps the critical
// section short when many articles are pending.
func (a Appender) Append(path, data string) error {
	if a.DryRun {
		return nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open mailbox %s: %w", path, err)
	}
	defer f.Close()

	fd := int(f.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return fmt.Errorf("lock mailbox %s: %w", path, err)
	}
	defer unix.Flock(fd, unix.LOCK_UN)

	if _, err := f.WriteString(data); err != nil {
		return fmt.Errorf("write mailbox %s: %w", path, err)
	}
	return nil
}
