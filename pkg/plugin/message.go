// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

// Package plugin defines the API shared by the supervisor and its workers:
// the message protocol, the per-worker queue and the worker capability.
package plugin

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Status identifies the kind of message a worker sends.
type Status string

// Statuses a worker may report. The set is closed; anything else is a
// protocol violation.
const (
	StatusError      Status = "err"
	StatusNotify     Status = "notify"
	StatusData       Status = "data"
	StatusFinished   Status = "fin"
	StatusWarning    Status = "warn"
	StatusTerminated Status = "term"
)

// ErrInvalidStatus is returned when a status is not part of the vocabulary.
var ErrInvalidStatus = errors.New("invalid message status")

var longStatus = map[Status]string{
	StatusError:      "Error",
	StatusNotify:     "Notification",
	StatusData:       "Data",
	StatusFinished:   "Finished",
	StatusWarning:    "Warning",
	StatusTerminated: "Terminated",
}

// Statuses returns the full vocabulary in declaration order.
func Statuses() []Status {
	return []Status{
		StatusError,
		StatusNotify,
		StatusData,
		StatusFinished,
		StatusWarning,
		StatusTerminated,
	}
}

// Valid reports whether s belongs to the vocabulary.
func (s Status) Valid() bool {
	_, ok := longStatus[s]
	return ok
}

// LongStatus returns the descriptive label for s. Consumers treat ok == false
// as an unknown message type.
func (s Status) LongStatus() (string, bool) {
	label, ok := longStatus[s]
	return label, ok
}

// ParseStatus converts a wire symbol to a Status.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return status, nil
}

// Message is the unit a worker sends to the supervisor.
type Message struct {
	// ID is a monotonic ULID stamped when the message is sent.
	ID      ulid.ULID
	Status  Status
	Content string
	// Issuer is the name of the sending worker.
	Issuer string
}

// NewMessage builds a validated message.
func NewMessage(status Status, content, issuer string) (Message, error) {
	m := Message{Issuer: issuer}
	if err := m.SetStatus(status); err != nil {
		return Message{}, err
	}
	m.Content = content
	return m, nil
}

// SetStatus sets the status if it belongs to the vocabulary. On failure the
// message is left unchanged.
func (m *Message) SetStatus(s Status) error {
	if !s.Valid() {
		return fmt.Errorf("%w: value %q is not a valid message status", ErrInvalidStatus, string(s))
	}
	m.Status = s
	return nil
}

// SetContent sets the message payload.
func (m *Message) SetContent(content string) {
	m.Content = content
}

// Reset clears status and content. The issuer is kept.
func (m *Message) Reset() {
	m.ID = ulid.ULID{}
	m.Status = ""
	m.Content = ""
}

// LongStatus returns the descriptive label of the message status.
func (m Message) LongStatus() (string, bool) {
	return m.Status.LongStatus()
}

// String renders the message as "issuer::Label> content".
func (m Message) String() string {
	label, ok := m.LongStatus()
	if !ok {
		label = "Unknown(" + string(m.Status) + ")"
	}
	return m.Issuer + "::" + label + "> " + m.Content
}

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// newID returns a ULID that sorts after every ID previously returned by
// this process.
func newID() ulid.ULID {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
}
