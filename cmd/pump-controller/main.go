// Command pump-controller transfers water between two tanks by driving the
// pump relays from tank-level telemetry, a daily schedule, and operator
// commands.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/moragues/pump-controller/internal/config"
	"github.com/moragues/pump-controller/internal/engine"
	"github.com/moragues/pump-controller/internal/history"
	"github.com/moragues/pump-controller/internal/relay"
	"github.com/moragues/pump-controller/internal/sim"
	"github.com/moragues/pump-controller/internal/telemetry"
	"github.com/moragues/pump-controller/internal/web"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration file")
	simulate := flag.Bool("sim", false, "Run without hardware or broker, with simulated tank levels")
	httpAddr := flag.String("http", "", "HTTP API address (overrides config, empty = from config)")
	flag.Parse()

	if err := run(*configPath, *simulate, *httpAddr); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(configPath string, simulate bool, httpAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	feed := telemetry.NewFeed(cfg.StalenessTimeout())

	// Actuator and history store: real hardware and SQLite normally, fakes
	// in -sim mode. Selection happens once here, never per call.
	var actuator relay.Actuator
	var store history.Store
	if simulate {
		actuator = relay.NewFakeActuator(len(cfg.RelayPins))
		store = history.NewMemoryStore()
		log.Printf("running in simulation mode: no GPIO, no broker, in-memory history")
	} else {
		pins := make([]relay.PinConfig, len(cfg.RelayPins))
		for i, rp := range cfg.RelayPins {
			pins[i] = relay.PinConfig{Pin: rp.Pin, ActiveHigh: rp.ActiveHigh}
		}
		real, err := relay.NewRealActuator(pins)
		if err != nil {
			return fmt.Errorf("init relays: %w", err)
		}
		actuator = real

		sqlStore, err := history.OpenSQLite(cfg.HistoryPath)
		if err != nil {
			actuator.Close()
			return fmt.Errorf("init history: %w", err)
		}
		store = sqlStore
	}
	// Whatever happens, no relay stays energized past this function:
	// relays shut down first, then the hardware and the store release.
	defer store.Close()
	defer actuator.Close()
	defer actuator.Shutdown()

	eng, err := engine.New(cfg, feed, actuator, store)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}

	// Telemetry transport: MQTT subscriber or the level simulator.
	if simulate {
		go sim.New(feed, 5*time.Second).Run(ctx)
	} else {
		source := telemetry.NewSource(cfg.BrokerURL(), cfg.VictronDeviceID, feed)
		if err := source.Start(); err != nil {
			// The paho client keeps retrying in the background; start the
			// loop anyway and let staleness handling keep the pump safe.
			log.Printf("telemetry: initial connect failed, retrying in background: %v", err)
		}
		defer source.Close()
	}

	reload := func() error {
		next, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return eng.Reconfigure(next)
	}

	srv := web.New(cfg.HTTPAddr, eng, store, reload)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()
	defer srv.Shutdown(context.Background())
	log.Printf("http api listening on %s", cfg.HTTPAddr)

	eng.Run(ctx)
	log.Printf("shut down cleanly")
	return nil
}
