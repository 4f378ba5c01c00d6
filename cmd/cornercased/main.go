// Command cornercased runs a corner-case capture session: it reads the
// driver wheels, drives the vehicle, keeps the pre-event frame window and
// serves the review API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/cornercase/internal/config"
	"github.com/banshee-data/cornercase/internal/version"
)

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Run configuration file")
	devMode     = flag.Bool("dev", false, "Run with mock wheels and synthetic frames")
	listen      = flag.String("listen", "", "Listen address (overrides the config file)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.LoadRunConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *listen != "" {
		cfg.Listen = listen
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(ctx, cfg, *devMode)
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	ln, err := net.Listen("tcp", cfg.GetListen())
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", cfg.GetListen(), err)
	}
	log.Printf("serving on %s", ln.Addr())

	if err := d.run(ctx, ln); err != nil {
		log.Printf("run ended with error: %v", err)
		os.Exit(1)
	}
	log.Printf("Graceful shutdown complete")
}
