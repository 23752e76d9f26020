package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/segyhp/loan-ledger/pkg/response"
)

// NewRouter wires the health, metrics and ledger API routes.
func NewRouter(loanHandler *LoanHandler, healthHandler *HealthHandler, gatherer prometheus.Gatherer, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(response.LoggingMiddleware(logger))
	router.Use(response.CORSMiddleware)

	// Health check
	router.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", healthHandler.Ready).Methods(http.MethodGet)
	router.Handle("/metrics", NewMetricsHandler(gatherer)).Methods(http.MethodGet)

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(response.JSONMiddleware)

	api.HandleFunc("/loans", loanHandler.CreateLoan).Methods(http.MethodPost)
	api.HandleFunc("/loans/{loanId}", loanHandler.GetLoan).Methods(http.MethodGet)
	api.HandleFunc("/loans/{loanId}/schedule", loanHandler.GetSchedule).Methods(http.MethodGet)
	api.HandleFunc("/loans/{loanId}/outstanding", loanHandler.GetOutstanding).Methods(http.MethodGet)
	api.HandleFunc("/loans/{loanId}/repayments", loanHandler.ApplyPayment).Methods(http.MethodPost)
	api.HandleFunc("/loans/{loanId}/repayments", loanHandler.ListReceipts).Methods(http.MethodGet)

	return router
}

// NewMetricsHandler serves the Prometheus exposition of gatherer. The
// scheduler mounts it on its own listener.
func NewMetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
