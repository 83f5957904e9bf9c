package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"av-trip/internal/orchestrator/infrastructure/consumer"
	"av-trip/pkg/config"
	"av-trip/pkg/logger"
	"av-trip/pkg/rabbitmq"
)

func main() {
	// Load config
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log := logger.NewLogger("audit-service")
	log.Info("service_starting", "Audit service starting")

	// Connect to RabbitMQ
	rabbit, err := rabbitmq.NewConnection(cfg, log)
	if err != nil {
		log.Error("rabbitmq_connect_failed", err)
		os.Exit(1)
	}
	defer rabbit.Close()

	// Start tailing the audit queues
	auditConsumer := consumer.New(rabbit, log)
	if err := auditConsumer.StartConsuming(); err != nil {
		log.Error("consumer_start_failed", err)
		os.Exit(1)
	}

	log.Info("service_running", "Audit service consuming change records")

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("service_shutdown", "Audit service stopped")
}
