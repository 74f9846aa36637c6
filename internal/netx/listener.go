// Package netx wraps the QUIC listener used by the ingestion server.
package netx

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"
)

// Listener is a QUIC listener. Sessions accepted by this listener carry
// their accept time and a unique identifier.
type Listener struct {
	*quic.Listener
}

// NewListener returns a netx.Listener.
func NewListener(l *quic.Listener) *Listener {
	return &Listener{
		Listener: l,
	}
}

// Listen listens for QUIC connections on the given UDP address. maxStream
// bounds the flow control window of a single stream.
func Listen(addr string, tlsConf *tls.Config, maxStream uint64) (*Listener, error) {
	ln, err := quic.ListenAddr(addr, tlsConf, &quic.Config{
		MaxStreamReceiveWindow: maxStream,
		MaxIdleTimeout:         time.Minute,
	})
	if err != nil {
		return nil, err
	}
	return NewListener(ln), nil
}

// Accept accepts a connection and returns a Session.
func (ln *Listener) Accept(ctx context.Context) (*Session, error) {
	conn, err := ln.Listener.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return &Session{
		Connection: conn,
		acceptTime: time.Now(),
		uuid:       uuid.NewString(),
	}, nil
}
