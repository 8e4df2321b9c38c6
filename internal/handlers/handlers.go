// Package handlers exposes the coordinator's HTTP surface: health, lot
// snapshots and room stats, plus the websocket endpoint.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/aaronwang/live-auction/internal/protocol"
	"github.com/aaronwang/live-auction/internal/service"
)

// Handler contains HTTP request handlers
type Handler struct {
	coord     *service.Coordinator
	websocket http.Handler
	logger    *slog.Logger
}

// NewHandler creates a new HTTP handler. ws serves the /ws endpoint.
func NewHandler(coord *service.Coordinator, ws http.Handler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		coord:     coord,
		websocket: ws,
		logger:    logger,
	}
}

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.HandleFunc("/stats/auctions/{id}", h.GetStats).Methods("GET")
	if h.websocket != nil {
		router.Handle("/ws", h.websocket).Methods("GET")
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auctions/{id}", h.GetAuction).Methods("GET")

	router.Use(h.loggingMiddleware)
	router.Use(corsMiddleware)

	return router
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "live-auction-coordinator",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// GetAuction returns the lot snapshot, the same document as auctionData
func (h *Handler) GetAuction(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["id"]

	lot, err := h.coord.GetAuctionData(r.Context(), auctionID)
	switch {
	case errors.Is(err, service.ErrAuctionNotFound):
		respondError(w, http.StatusNotFound, "Auction not found")
		return
	case errors.Is(err, service.ErrUnavailable):
		respondError(w, http.StatusServiceUnavailable, "Auction state unavailable")
		return
	case err != nil:
		h.logger.Error("failed to load auction", "auction", auctionID, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to retrieve auction")
		return
	}

	respondJSON(w, http.StatusOK, protocol.AuctionData{AuctionLot: lot})
}

// GetStats returns the live watcher count for a lot's room
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["id"]

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"auctionId": auctionID,
		"watchers":  h.coord.Rooms().WatcherCount(auctionID),
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// loggingMiddleware logs all HTTP requests. The writer is passed through
// untouched so websocket upgrades can hijack it.
func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.logger.Debug("http request", "method", r.Method, "uri", r.RequestURI, "duration", time.Since(start))
	})
}

// corsMiddleware adds CORS headers (for development)
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
