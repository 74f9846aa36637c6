// Package client implements the buoy side of the buoy1 upload protocol.
//
// Every call to Upload is an independent attempt: it dials a new QUIC
// connection, sends one message on one stream, reads the response and closes
// the connection. Nothing is retried.
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/buoylink/buoylink/pkg/buoy1"
	"github.com/buoylink/buoylink/pkg/buoy1/model"
	"github.com/buoylink/buoylink/pkg/buoy1/spec"
	"github.com/buoylink/buoylink/pkg/version"
)

// maxResponseSize bounds the server's response. Known responses are a
// single status line.
const maxResponseSize = 64 * 1024

var (
	// ErrNoServer is returned by New if no server URL is configured.
	ErrNoServer = errors.New("no server configured")
	// ErrInvalidCA is returned by New if the CA file contains no certificate.
	ErrInvalidCA = errors.New("no certificate found in CA file")
)

// Phase identifies the step of an upload attempt.
type Phase string

// Upload phases, in order.
const (
	PhaseConnect  = Phase("connect")
	PhaseOpen     = Phase("open")
	PhaseSend     = Phase("send")
	PhaseFinish   = Phase("finish")
	PhaseResponse = Phase("response")
)

// PhaseError is returned by Upload. It records which phase failed.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	kind := "failed"
	if e.Timeout() {
		kind = "timed out"
	}
	return fmt.Sprintf("%s %s: %v", e.Phase, kind, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the phase failed because its deadline expired.
func (e *PhaseError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) || errors.Is(e.Err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// Client uploads BuoyData to an ingestion server.
type Client struct {
	config  Config
	addr    string
	tlsConf *tls.Config
}

// New returns a Client for config. Zero timeouts are replaced with the
// protocol defaults.
func New(config Config) (*Client, error) {
	if config.Server == "" {
		return nil, ErrNoServer
	}
	u, err := url.Parse(config.Server)
	if err != nil {
		return nil, err
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("server URL %q has no host", config.Server)
	}
	port := u.Port()
	if port == "" {
		port = strconv.Itoa(spec.DefaultPort)
	}

	pool, err := loadCA(config.CAFile)
	if err != nil {
		return nil, err
	}

	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = spec.ConnectTimeout
	}
	if config.SendTimeout == 0 {
		config.SendTimeout = spec.SendTimeout
	}
	if config.ResponseTimeout == 0 {
		config.ResponseTimeout = spec.ResponseTimeout
	}
	if config.Version == "" {
		config.Version = version.Version
	}
	if config.Emitter == nil {
		config.Emitter = LogEmitter{}
	}

	return &Client{
		config: config,
		addr:   net.JoinHostPort(host, port),
		tlsConf: &tls.Config{
			RootCAs:    pool,
			ServerName: host,
			NextProtos: spec.NextProtos,
			MinVersion: tls.VersionTLS13,
		},
	}, nil
}

// loadCA reads a PEM bundle or a single DER certificate.
func loadCA(path string) (*x509.CertPool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read CA: %w", err)
	}
	pool := x509.NewCertPool()
	if block, _ := pem.Decode(b); block != nil {
		if !pool.AppendCertsFromPEM(b) {
			return nil, ErrInvalidCA
		}
		return pool, nil
	}
	cert, err := x509.ParseCertificate(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCA, err)
	}
	pool.AddCert(cert)
	return pool, nil
}

// Upload sends data to the server and returns the command found in the
// response. An unrecognized response is reported by the Emitter and mapped
// to the Normal command.
func (c *Client) Upload(ctx context.Context, data model.BuoyData) (model.Command, error) {
	cmd, err := c.upload(ctx, data)
	if err != nil {
		c.config.Emitter.OnError(c.addr, err)
	}
	return cmd, err
}

func (c *Client) upload(ctx context.Context, data model.BuoyData) (model.Command, error) {
	msg := buoy1.BuildUpload(data, c.config.Version)
	start := time.Now()

	connectCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()
	conn, err := quic.DialAddr(connectCtx, c.addr, c.tlsConf.Clone(), &quic.Config{
		HandshakeIdleTimeout: c.config.ConnectTimeout,
	})
	if err != nil {
		return model.Command{}, &PhaseError{Phase: PhaseConnect, Err: err}
	}
	defer conn.CloseWithError(0, "done")
	c.config.Emitter.OnConnect(c.addr)

	stream, err := conn.OpenStreamSync(connectCtx)
	if err != nil {
		return model.Command{}, &PhaseError{Phase: PhaseOpen, Err: err}
	}

	stream.SetWriteDeadline(time.Now().Add(c.config.SendTimeout))
	if _, err := stream.Write(msg); err != nil {
		stream.CancelRead(0)
		return model.Command{}, &PhaseError{Phase: PhaseSend, Err: err}
	}
	// Close only closes the send direction of the stream.
	if err := stream.Close(); err != nil {
		stream.CancelRead(0)
		return model.Command{}, &PhaseError{Phase: PhaseFinish, Err: err}
	}

	stream.SetReadDeadline(time.Now().Add(c.config.ResponseTimeout))
	resp, err := io.ReadAll(io.LimitReader(stream, maxResponseSize))
	if err != nil {
		return model.Command{}, &PhaseError{Phase: PhaseResponse, Err: err}
	}
	c.config.Emitter.OnUploaded(c.addr, len(data.Hydrophone), time.Since(start))

	cmd, err := buoy1.ParseResponse(resp)
	if err != nil {
		c.config.Emitter.OnError(c.addr, err)
	}
	return cmd, nil
}
