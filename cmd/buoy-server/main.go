// Command buoy-server receives uploads from buoys over QUIC and persists
// them, together with their derived waveforms and spectrograms.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	"github.com/buoylink/buoylink/internal/codec"
	"github.com/buoylink/buoylink/internal/ingest"
	"github.com/buoylink/buoylink/internal/netx"
	"github.com/buoylink/buoylink/internal/notify"
	"github.com/buoylink/buoylink/internal/persistence"
	"github.com/buoylink/buoylink/pkg/buoy1/spec"
)

var (
	flagCertFile     = flag.String("cert", "", "The file with server certificates in PEM format.")
	flagKeyFile      = flag.String("key", "", "The file with server key in PEM format.")
	flagEndpoint     = flag.String("addr", ":"+strconv.Itoa(spec.DefaultPort), "Listen address/port for QUIC connections")
	flagDataDir      = flag.String("datadir", "./data", "Directory to store data in")
	flagDecoder      = flag.String("decoder", "", "Command converting {in} (raw payload) to {out} (waveform); prints the decode error count")
	flagRenderer     = flag.String("renderer", "", "Command rendering {in} (waveform) to {out} (spectrogram image)")
	flagCollisionTTL = flag.Duration("collision-window", ingest.DefaultCollisionWindow, "How long uploads are remembered for collision detection")
	flagLogLevel     = flag.String("log.level", "info", "Log level: debug, info, warn or error")

	flagMQTTBroker   = flag.String("mqtt.broker", "", "MQTT broker for upload notices, e.g. tcp://localhost:1883 (disabled if empty)")
	flagMQTTTopic    = flag.String("mqtt.topic", notify.DefaultTopic, "MQTT topic pattern for upload notices")
	flagMQTTUsername = flag.String("mqtt.username", "", "MQTT username")
	flagMQTTPassword = flag.String("mqtt.password", "", "MQTT password")
)

func main() {
	_ = godotenv.Load()
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not read args from environment")

	// Initialize logging and metrics.
	log.SetReportCaller(true)
	log.SetReportTimestamp(true)
	log.SetLevel(parseLevel(*flagLogLevel))

	promSrv := prometheusx.MustServeMetrics()
	defer promSrv.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cert, err := tls.LoadX509KeyPair(*flagCertFile, *flagKeyFile)
	rtx.Must(err, "Could not load certificate")
	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   spec.NextProtos,
		MinVersion:   tls.VersionTLS13,
	}

	store, err := persistence.New(*flagDataDir)
	rtx.Must(err, "Could not create data directory")
	handler := ingest.New(store, *flagCollisionTTL)
	defer handler.Close()

	if *flagDecoder != "" {
		dec, err := codec.Parse(*flagDecoder)
		rtx.Must(err, "Invalid decoder command")
		handler.Decoder = dec
	} else {
		log.Warn("No decoder configured, waveforms and spectrograms are disabled")
	}
	if *flagRenderer != "" {
		ren, err := codec.Parse(*flagRenderer)
		rtx.Must(err, "Invalid renderer command")
		handler.Renderer = ren
	}

	if *flagMQTTBroker != "" {
		n, err := notify.NewMQTT(notify.Config{
			Broker:   *flagMQTTBroker,
			ClientID: "buoy-server-" + uuid.NewString(),
			Username: *flagMQTTUsername,
			Password: *flagMQTTPassword,
			Topic:    *flagMQTTTopic,
			Timeout:  10 * time.Second,
		})
		rtx.Must(err, "Could not connect to MQTT broker")
		defer n.Close()
		handler.Notifier = n
	}

	ln, err := netx.Listen(*flagEndpoint, tlsConf, spec.MaxStreamSize)
	rtx.Must(err, "Failed to create listener")
	defer ln.Close()
	log.Info("About to listen for uploads", "endpoint", *flagEndpoint, "datadir", *flagDataDir)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	srv := &ingest.Server{Listener: ln, Handler: handler}
	rtx.Must(srv.Serve(ctx), "Could not serve")
	log.Info("Shutting down")
}

func parseLevel(s string) log.Level {
	switch s {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	}
	return log.InfoLevel
}
