package main

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/bluemods/deceive-proxy/config"
	"github.com/bluemods/deceive-proxy/connection"
	"github.com/bluemods/deceive-proxy/control"
	"github.com/bluemods/deceive-proxy/crypto"
	"github.com/bluemods/deceive-proxy/metrics"
	"github.com/bluemods/deceive-proxy/plugins"
	"github.com/bluemods/deceive-proxy/policy"
	"github.com/bluemods/deceive-proxy/server"
	"github.com/bluemods/deceive-proxy/utils"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatal("Invalid configuration: ", err.Error())
	}
	utils.SetDebug(cfg.Debug)

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		log.Fatal("Failed creating data directory: ", err.Error())
	}
	logFile, err := os.OpenFile(cfg.DebugLogFile(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		log.Println("Failed opening debug log, logging to stderr only:", err.Error())
	} else {
		defer logFile.Close()
		log.SetOutput(io.MultiWriter(os.Stderr, logFile))
	}

	apiKey, err := config.ReadApiKeyFile(cfg.ApiKeyFile)
	if err != nil {
		log.Fatal("Failed parsing API key file: ", err.Error())
	}
	if apiKey != "" {
		log.Printf("API key set (length=%d)\n", len(apiKey))
	}

	cert, err := crypto.LoadServerCertificate(cfg.CertFile, cfg.KeyFile, cfg.P12File, cfg.P12PasswordFile)
	if err != nil {
		log.Fatal("Error loading certificate: ", err.Error())
	}

	var collector *metrics.Collector
	if cfg.Metrics {
		collector = metrics.NewCollector()
	}

	var traceLogger *connection.TraceLogger
	if cfg.TraceLog {
		traceLogger, err = connection.NewTraceLogger(cfg.TraceLogFile(), gzip.BestSpeed)
		if err != nil {
			log.Println("Failed to create trace logger:", err.Error())
		}
	}

	initial := cfg.InitialPolicy()
	log.Printf("Starting with status %s (enabled=%t, lobby chat=%t)\n", initial.Status, initial.Enabled, initial.LobbyChat)

	builder := server.NewTLS(cfg.ListenAddr, crypto.ServerTLSConfig(cert)).
		WithChatServer(cfg.ChatHost, cfg.ChatPort).
		WithIdleTimeout(cfg.IdleTimeout).
		WithPolicyStore(policy.NewStore(initial), cfg.StatusFile()).
		WithMetrics(collector).
		WithTraceLogger(traceLogger)
	if dial := plugins.ChatDialer(); dial != nil {
		log.Println("Dialing the chat server through the registered interceptor")
		builder.WithCustomDialer(dial)
	}
	srv, err := builder.Start()
	if err != nil {
		log.Fatal("Error opening SSL socket: ", err.Error())
	}

	// The launcher points the game client at this port
	fmt.Println(srv.Port())

	if !cfg.NoControl {
		api := control.NewControlServer(cfg.ControlAddr, srv).WithMetrics(collector)
		if apiKey != "" {
			api.WithApiKey(apiKey)
		}
		if cfg.Profiling {
			api.WithProfiling()
		}
		if err := api.Start(); err != nil {
			log.Fatal("Error opening control API: ", err.Error())
		}
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-signals
		log.Println("Received " + sig.String())
		srv.Shutdown()
	}()

	srv.Await()
}
