package mailstore

import (
	"net/textproto"
	"slices"
)

// MessageID identifies a message within one store. IDs are stable across runs.
type MessageID string

// Short returns at most n leading characters of the ID for log output.
func (id MessageID) Short(n int) string {
	if n <= 0 || len(id) <= n {
		return string(id)
	}
	return string(id[:n])
}

// Query is a search expression understood by every Store, see ParseQuery.
type Query struct {
	Raw string
}

// Message is a read-only snapshot of a message's headers and tags.
type Message struct {
	ID      MessageID
	Headers map[string]string
	Tags    []string
}

// NewMessage builds a Message with canonicalized header names.
func NewMessage(id MessageID, headers map[string]string, tags []string) Message {
	canon := make(map[string]string, len(headers))
	for name, value := range headers {
		canon[textproto.CanonicalMIMEHeaderKey(name)] = value
	}
	return Message{ID: id, Headers: canon, Tags: tags}
}

// Header returns the value of the named header. Lookup is case-insensitive and
// an absent header yields the empty string.
func (m Message) Header(name string) string {
	if m.Headers == nil {
		return ""
	}
	return m.Headers[textproto.CanonicalMIMEHeaderKey(name)]
}

// HasTag reports whether the message carries tag.
func (m Message) HasTag(tag string) bool {
	return slices.Contains(m.Tags, tag)
}
