package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kinohub/strangler-proxy/internal/events"
	"github.com/kinohub/strangler-proxy/internal/logging"
)

func main() {
	var addr string
	flag.StringVar(&addr, "addr", "", "listen address (defaults to :$PORT or :8082)")
	flag.Parse()

	log := logging.New()

	if addr == "" {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8082"
		}
		addr = ":" + port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var pub events.Publisher
	if amqpURL := os.Getenv("AMQP_URL"); amqpURL != "" {
		p, err := events.NewAMQPPublisher(amqpURL, log)
		if err != nil {
			log.Error("failed to connect to broker", slog.String("error", err.Error()))
			os.Exit(1)
		}
		go func() {
			if err := p.RunConsumers(ctx); err != nil {
				log.Error("consumers stopped", slog.String("error", err.Error()))
			}
		}()
		pub = p
	} else {
		log.Warn("AMQP_URL not set; publishing to in-memory broker")
		pub = events.NewMemoryPublisher()
	}
	defer pub.Close()

	srv := &http.Server{
		Addr:              addr,
		Handler:           events.NewService(pub, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("events service listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("shutdown complete")
}
