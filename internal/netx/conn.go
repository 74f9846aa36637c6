package netx

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"
)

// Session is a QUIC connection that stores its accept time, a unique
// identifier and the number of streams accepted so far.
type Session struct {
	quic.Connection

	acceptTime time.Time
	uuid       string
	streams    atomic.Uint64
}

// AcceptTime returns the time the session was accepted.
func (s *Session) AcceptTime() time.Time {
	return s.acceptTime
}

// UUID returns the session's unique identifier.
func (s *Session) UUID() string {
	return s.uuid
}

// Streams returns the number of streams accepted on this session.
func (s *Session) Streams() uint64 {
	return s.streams.Load()
}

// AcceptStream accepts the next bidirectional stream opened by the peer and
// updates the stream counter.
func (s *Session) AcceptStream(ctx context.Context) (quic.Stream, error) {
	st, err := s.Connection.AcceptStream(ctx)
	if err == nil {
		s.streams.Add(1)
	}
	return st, err
}
