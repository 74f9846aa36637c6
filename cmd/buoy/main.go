// Command buoy runs on the buoy: it records hydrophone data from the serial
// port, manages power and uploads recordings to the ingestion server.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	"github.com/buoylink/buoylink/internal/acquisition"
	"github.com/buoylink/buoylink/internal/actionq"
	"github.com/buoylink/buoylink/internal/config"
	"github.com/buoylink/buoylink/internal/controller"
	"github.com/buoylink/buoylink/internal/delivery"
	"github.com/buoylink/buoylink/internal/gps"
	"github.com/buoylink/buoylink/internal/peripherals"
	"github.com/buoylink/buoylink/internal/power"
	"github.com/buoylink/buoylink/internal/telemetry"
	"github.com/buoylink/buoylink/pkg/buoy1/spec"
	"github.com/buoylink/buoylink/pkg/client"
	"github.com/buoylink/buoylink/pkg/version"
)

var (
	flagConfig   = flag.String("config", "", "YAML file with the buoy tuning parameters")
	flagServer   = flag.String("server", "", "Ingestion server URL, e.g. https://buoys.example.org:4433")
	flagCA       = flag.String("ca", "", "Certificate authority of the server, in PEM or DER format")
	flagProfile  = flag.String("profile", "none", "Hardware profile: full or none")
	flagSerial   = flag.String("serial", "", "Serial port of the hydrophone (overrides the config file)")
	flagVoltage  = flag.Float64("voltage", 0, "Report this battery voltage instead of reading the ADC")
	flagLogLevel = flag.String("log.level", "info", "Log level: debug, info, warn or error")
)

func main() {
	// A missing .env file is fine.
	_ = godotenv.Load()
	flag.Parse()
	rtx.Must(flagx.ArgsFromEnv(flag.CommandLine), "Could not read args from environment")

	log.SetReportCaller(true)
	log.SetReportTimestamp(true)
	log.SetLevel(parseLevel(*flagLogLevel))

	promSrv := prometheusx.MustServeMetrics()
	defer promSrv.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*flagConfig)
	rtx.Must(err, "Could not load config")
	if *flagSerial != "" {
		cfg.Serial.Path = *flagSerial
	}

	cl, err := client.New(client.Config{
		Server:          *flagServer,
		CAFile:          *flagCA,
		ConnectTimeout:  spec.ConnectTimeout,
		SendTimeout:     spec.SendTimeout,
		ResponseTimeout: spec.ResponseTimeout,
		Version:         version.Version,
	})
	rtx.Must(err, "Could not create upload client")

	var voltage telemetry.VoltageReader = telemetry.ADC{Path: cfg.ADCPath}
	if *flagVoltage != 0 {
		voltage = telemetry.Fixed(*flagVoltage)
	}
	factory := &telemetry.Factory{
		BuoyID:  cfg.BuoyID,
		Voltage: voltage,
		Uptime:  telemetry.ProcUptime{Path: cfg.UptimePath},
	}

	queue := actionq.New()
	position := &gps.Position{}

	periph, err := peripherals.New(*flagProfile, &peripherals.Full{
		GPS:         gps.CommandLocator{Path: cfg.GPS.Script},
		GPSInterval: cfg.GPS.Interval,
		Light: &peripherals.Light{
			Path:       cfg.Light.Path,
			Interval:   cfg.Light.Interval,
			NumFlashes: cfg.Light.Flashes,
			On:         cfg.Light.On,
			Off:        cfg.Light.Off,
		},
	})
	rtx.Must(err, "Invalid hardware profile")
	periph.Start(ctx, position)

	supervisor := &power.Supervisor{
		Voltage:         voltage,
		Action:          power.ScriptAction{Path: cfg.Power.Script},
		Interval:        cfg.Power.Interval,
		LowThreshold:    cfg.Power.LowThreshold,
		MediumThreshold: cfg.Power.MediumThreshold,
		LowDelay:        cfg.Power.LowDelay,
		LowSleep:        cfg.Power.LowSleep,
		MediumSleep:     cfg.Power.MediumSleep,
	}
	go func() {
		if err := supervisor.Run(ctx); err != nil {
			log.Error("Power supervisor stopped", "error", err)
		}
	}()

	policy := &delivery.FireAndForget{Uploader: cl, Queue: queue}
	router := &controller.Router{
		Queue:        queue,
		Position:     position,
		Policy:       policy,
		Factory:      factory,
		Handler:      controller.Commands{},
		SendInterval: cfg.SendInterval,
		NoDataWait:   cfg.NoDataWait,
	}
	go router.Run(ctx)

	port, err := acquisition.OpenSerial(cfg.Serial.Path, cfg.Serial.Baud, cfg.Serial.ReadTimeout)
	rtx.Must(err, "Could not open serial port")
	defer port.Close()

	log.Info("Buoy started", "id", cfg.BuoyID, "server", *flagServer,
		"profile", *flagProfile, "version", version.Version)

	loop := &acquisition.Loop{
		Source:         port,
		Sink:           queue,
		Factory:        factory,
		RecordDuration: cfg.RecordDuration,
		ReadBufferSize: cfg.Serial.BufferSize,
	}
	err = loop.Run(ctx)
	if ctx.Err() != nil {
		log.Info("Shutting down", "dropped_uploads", policy.Dropped())
		return
	}
	log.Error("Acquisition failed", "error", err)
	os.Exit(1)
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
