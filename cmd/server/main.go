// cmd/server/main.go
package main

import (
	"log"
	"net/http"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/EmoBanana/smtd-server/internal/config"
	"github.com/EmoBanana/smtd-server/internal/handlers"
	"github.com/EmoBanana/smtd-server/internal/journal"
	"github.com/EmoBanana/smtd-server/internal/middleware"
	"github.com/EmoBanana/smtd-server/internal/monitor"
	"github.com/EmoBanana/smtd-server/internal/settlement"
)

func main() {
	cfg := config.Load()

	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	mon := monitor.New("smtd")

	var j *journal.Journal
	if cfg.RedisAddr != "" {
		var err error
		j, err = journal.Connect(cfg.RedisAddr, cfg.JournalQueue)
		if err != nil {
			logger.Warnf("match-event journal disabled: %v", err)
		}
	}

	if cfg.SettlementURL == "" {
		logger.Warn("SETTLEMENT_URL not set; reward settlement will fail and be surfaced as room errors")
	}
	settler := settlement.NewHTTPSettler(cfg.SettlementURL, cfg.SettlementTimeout)

	ms := handlers.NewMatchServer(logger, settler, j, mon)
	ms.Countdown = cfg.Countdown
	ms.SettlementTimeout = cfg.SettlementTimeout

	logged := middleware.LogMiddleware(logger)

	mux := http.NewServeMux()
	mux.Handle("/", logged(handlers.IndexHandler()))
	mux.Handle("/api/rooms", logged(handlers.ListRoomsHandler(ms)))
	mux.Handle("/ws", logged(handlers.WSHandler(logger, ms)))

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", mon.Handler())

	var g errgroup.Group
	g.Go(func() error {
		logger.Infof("match server listening on %s", cfg.Addr)
		return http.ListenAndServe(cfg.Addr, mux)
	})
	g.Go(func() error {
		logger.Infof("metrics listening on %s", cfg.MetricsAddr)
		return http.ListenAndServe(cfg.MetricsAddr, metricsMux)
	})
	if err := g.Wait(); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
