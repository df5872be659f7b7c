package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/common/logger"
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/config"
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "prophylaxis-monitor")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	monitor, err := service.NewMonitorService(cfg, rosterResolver(), log)
	if err != nil {
		log.Fatal("Failed to create monitor service",
			zap.Error(err),
		)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := monitor.Start(ctx); err != nil {
		log.Fatal("Failed to start monitor service",
			zap.Error(err),
		)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("Received signal, shutting down",
		zap.String("signal", sig.String()),
	)
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := monitor.Stop(stopCtx); err != nil {
		log.Error("Shutdown finished with errors",
			zap.Error(err),
		)
	}

	log.Info("Monitor service stopped")
}

// rosterResolver resolves alert roles to on-call contacts from
// ROLE_<NAME> environment variables ("id:display name"). Deployments
// with a staffing system replace this with a live lookup.
func rosterResolver() func(ctx context.Context, role string) (string, string, error) {
	return func(ctx context.Context, role string) (string, string, error) {
		value := os.Getenv("ROLE_" + strings.ToUpper(role))
		if value == "" {
			return "", "", fmt.Errorf("no contact configured for role %s", role)
		}
		id, name, found := strings.Cut(value, ":")
		if !found {
			return id, id, nil
		}
		return id, name, nil
	}
}
