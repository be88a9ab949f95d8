// handler.go — основной обработчик API File Processor.
// Объединяет health и бизнес-обработчики, регистрирует маршруты.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/fileproc/internal/service"
)

// APIHandler — основной обработчик API File Processor.
// Делегирует запросы в сервисный слой.
type APIHandler struct {
	ingest *service.IngestService
	query  *service.QueryService
	health *HealthHandler
	logger *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	ingest *service.IngestService,
	query *service.QueryService,
	health *HealthHandler,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		ingest: ingest,
		query:  query,
		health: health,
		logger: logger.With(slog.String("component", "api_handler")),
	}
}

// RegisterRoutes регистрирует маршруты API на роутере.
// Health и metrics живут вне /api/v1: эти пути исключены из JWT-аутентификации.
func (h *APIHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
	r.Get("/metrics", h.health.GetMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/files/upload", h.handleUploadFile)
		r.Get("/files", h.handleListFiles)
		r.Get("/files/{id}", h.handleGetFile)
	})
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
