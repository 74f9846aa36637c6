package client

import (
	"time"
)

// Config is the configuration for a Client.
type Config struct {
	// Server is the URL of the ingestion server, e.g.
	// "https://buoys.example.org:4433". The port defaults to spec.DefaultPort.
	Server string

	// CAFile is the certificate authority used to verify the server, in PEM
	// or DER format.
	CAFile string

	// ConnectTimeout bounds the QUIC handshake and the opening of the stream.
	ConnectTimeout time.Duration

	// SendTimeout bounds writing the whole upload message.
	SendTimeout time.Duration

	// ResponseTimeout bounds reading the server's response.
	ResponseTimeout time.Duration

	// Version is sent in the sw-version header.
	Version string

	// Emitter is the interface used to report the progress of each upload.
	// It can be overridden to provide a custom output.
	Emitter Emitter
}
