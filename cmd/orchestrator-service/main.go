package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"av-trip/internal/orchestrator/domain"
	"av-trip/internal/orchestrator/infrastructure/eventfeed"
	"av-trip/internal/orchestrator/infrastructure/messaging"
	"av-trip/internal/orchestrator/infrastructure/repository"
	"av-trip/internal/orchestrator/service"
	"av-trip/internal/registry/eligibility"
	"av-trip/internal/registry/fleet"
	"av-trip/internal/registry/portcap"
	"av-trip/pkg/auth"
	"av-trip/pkg/config"
	"av-trip/pkg/credential"
	"av-trip/pkg/db"
	"av-trip/pkg/events"
	"av-trip/pkg/logger"
	"av-trip/pkg/rabbitmq"
)

// orchestratorPrincipal is the identity the orchestrator presents to the
// leaf-registry allow-lists.
const orchestratorPrincipal = "trip-orchestrator"

// requestLogger logs every request with method, path and duration.
func requestLogger(log logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.WithFields(logger.LogFields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("http_request", "Request handled")
	})
}

func main() {
	// Load config
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log := logger.NewLogger("orchestrator-service")
	log.Info("service_starting", fmt.Sprintf("Trip orchestrator starting on port %d", cfg.HTTP.Port))

	// Connect to RabbitMQ for the audit/event sink
	rabbit, err := rabbitmq.NewConnection(cfg, log)
	if err != nil {
		log.Error("rabbitmq_connect_failed", err)
		os.Exit(1)
	}
	defer rabbit.Close()

	// Initialize JWT managers: one for caller identity, one for credentials
	jwtManager := auth.NewJWTManager(cfg.Auth.Secret, 1*time.Hour)
	verifier := credential.NewJWTVerifier(cfg.Auth.CredentialSecret)

	// Event sinks: RabbitMQ audit stream plus the live websocket feed
	feed := eventfeed.NewHub(jwtManager, log)
	sink := events.Fanout{
		messaging.NewRabbitMQEventPublisher(rabbit, log),
		feed,
	}

	// Trip repository: in-memory by default, Postgres when TRIP_STORE=postgres
	var trips domain.TripRepository
	if os.Getenv("TRIP_STORE") == "postgres" {
		dbConn, err := db.NewConnection(cfg, log)
		if err != nil {
			log.Error("db_connect_failed", err)
			os.Exit(1)
		}
		defer dbConn.Close()
		trips = repository.NewPostgresTripRepository(dbConn)
	} else {
		trips = repository.NewMemoryTripRepository()
	}

	// Leaf registries with their authorization allow-lists
	eligibilityReg := eligibility.NewRegistry(cfg.Principals.Issuer, verifier, verifier, sink, log)
	portReg := portcap.NewRegistry(verifier, sink, log, orchestratorPrincipal, cfg.Principals.Admin)
	fleetReg := fleet.NewRegistry(verifier, sink, log, orchestratorPrincipal, cfg.Principals.Admin)

	// The coordinator itself
	orchestrator := service.NewOrchestrator(
		trips, eligibilityReg, portReg, fleetReg, verifier, sink, log,
		orchestratorPrincipal, cfg.Principals.Operator,
	)

	h := NewHandler(orchestrator, eligibilityReg, portReg, fleetReg, log)

	// Setup routes
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.Health)

	protect := func(fn http.HandlerFunc) http.Handler {
		return jwtManager.AuthMiddleware(fn)
	}

	// Trip lifecycle
	mux.Handle("POST /reservations", protect(h.CreateReservation))
	mux.Handle("POST /trips/{trip_id}/start", protect(h.StartTrip))
	mux.Handle("POST /trips/{trip_id}/complete", protect(h.CompleteTrip))
	mux.Handle("POST /trips/{trip_id}/cancel", protect(h.CancelTrip))
	mux.Handle("POST /trips/{trip_id}/reconcile", protect(h.ReconcileTrip))
	mux.HandleFunc("GET /trips/{trip_id}", h.GetTrip)
	mux.HandleFunc("GET /trips", h.ListTrips)
	mux.HandleFunc("GET /stats", h.GetStats)

	// Administration
	mux.Handle("POST /admin/operator", protect(h.SetOperator))
	mux.Handle("POST /admin/vehicles/{vehicle_id}/release", protect(h.ReleaseVehicle))

	// Rider eligibility registry
	mux.Handle("PUT /riders/{rider}/eligibility", protect(h.SetEligibility))
	mux.HandleFunc("GET /riders/{rider}/eligibility", h.GetEligibility)
	mux.Handle("POST /admin/issuer/rotate", protect(h.RotateIssuer))

	// Port capacity registry
	mux.Handle("POST /ports", protect(h.RegisterPort))
	mux.Handle("POST /ports/{port_id}/delta", protect(h.ApplyPortDelta))
	mux.HandleFunc("GET /ports/{port_id}", h.GetPort)

	// Fleet state registry
	mux.Handle("POST /vehicles", protect(h.RegisterVehicle))
	mux.Handle("POST /vehicles/{vehicle_id}/maintenance", protect(h.SetMaintenance))
	mux.Handle("POST /vehicles/{vehicle_id}/maintenance/finish", protect(h.FinishMaintenance))
	mux.HandleFunc("GET /vehicles/{vehicle_id}", h.GetVehicle)

	// Live change-record feed
	mux.Handle("GET /ws/events", feed)

	// Start server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: requestLogger(log, mux),
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server_failed", err)
			os.Exit(1)
		}
	}()

	log.Info("server_running", fmt.Sprintf("Trip orchestrator running on :%d", cfg.HTTP.Port))

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("server_shutdown", "Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
	log.Info("server_stopped", "Server stopped gracefully")
}
