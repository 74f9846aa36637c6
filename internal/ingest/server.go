package ingest

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/buoylink/buoylink/internal/netx"
)

// Server accepts QUIC sessions and hands every stream to the Handler.
// Sessions and streams are served concurrently.
type Server struct {
	Listener *netx.Listener
	Handler  *Handler
}

// Serve accepts sessions until ctx is canceled or the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	for {
		sess, err := s.Listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		log.Info("Connection established", "uuid", sess.UUID(),
			"remote", sess.RemoteAddr().String(),
			"protocol", sess.ConnectionState().TLS.NegotiatedProtocol)
		go s.serveSession(ctx, sess)
	}
}

// serveSession treats each stream opened by the client as a new request.
func (s *Server) serveSession(ctx context.Context, sess *netx.Session) {
	for {
		stream, err := sess.AcceptStream(ctx)
		if err != nil {
			log.Debug("Connection terminated", "uuid", sess.UUID(),
				"streams", sess.Streams(), "duration", time.Since(sess.AcceptTime()),
				"reason", err)
			return
		}
		go s.Handler.HandleStream(ctx, stream)
	}
}
