package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"qbsync/internal/config"
	"qbsync/internal/database"
	"qbsync/internal/export"
	"qbsync/internal/metrics"
	"qbsync/internal/models"
	"qbsync/internal/syncer"

	"github.com/rs/zerolog"
)

const maxWebhookBody = 1 << 20

// Server exposes the webhook, admin and QBWC SOAP surfaces on one port.
type Server struct {
	cfg          *config.Config
	db           *database.DB
	orchestrator *syncer.Orchestrator
	logger       zerolog.Logger
	server       *http.Server
}

func NewServer(cfg *config.Config, db *database.DB, orchestrator *syncer.Orchestrator, qbwcHandler http.Handler, logger *zerolog.Logger) *Server {
	srv := &Server{
		cfg:          cfg,
		db:           db,
		orchestrator: orchestrator,
		logger:       logger.With().Str("component", "api").Logger(),
	}
	auth := NewAuth(cfg.API)

	mux := http.NewServeMux()
	mux.Handle("/qbwc", qbwcHandler)
	mux.Handle("/qbwc/wsdl", qbwcHandler)
	mux.HandleFunc("/webhooks/hcp", srv.handleHCPWebhook)
	mux.HandleFunc("/webhooks/qbo", srv.handleQBOWebhook)
	mux.Handle("/api/v1/queue-adjustment", auth.Wrap(http.HandlerFunc(srv.handleQueueAdjustment)))
	mux.Handle("/api/v1/queue", auth.Wrap(http.HandlerFunc(srv.handleListQueue)))
	mux.Handle("/api/v1/sync-log", auth.Wrap(http.HandlerFunc(srv.handleListSyncLog)))
	mux.Handle("/api/v1/export/sync-log", auth.Wrap(http.HandlerFunc(srv.handleExportSyncLog)))
	mux.HandleFunc("/healthz", srv.handleHealth)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           loggingMiddleware(&srv.logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the root handler for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handleHCPWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	signature := r.Header.Get("api-signature")
	timestamp := r.Header.Get("api-timestamp")
	if !syncer.VerifyHCPSignature(s.cfg.HCP.WebhookSecret, timestamp, body, signature) {
		s.logger.Warn().Str("remote", r.RemoteAddr).Msg("hcp webhook signature rejected")
		metrics.IncWebhook(models.ProviderHCP, "rejected")
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	if err := s.orchestrator.HandleHCPEvent(r.Context(), body); err != nil {
		s.logger.Error().Err(err).Msg("hcp webhook processing failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQBOWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	signature := r.Header.Get("intuit-signature")
	if !syncer.VerifyQBOSignature(s.cfg.QBO.VerifierToken, body, signature) {
		s.logger.Warn().Str("remote", r.RemoteAddr).Msg("qbo webhook signature rejected")
		metrics.IncWebhook(models.ProviderQBO, "rejected")
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	if err := s.orchestrator.HandleQBOEvent(r.Context(), body); err != nil {
		s.logger.Error().Err(err).Msg("qbo webhook processing failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQueueAdjustment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req syncer.ManualAdjustment
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ItemID == 0 {
		writeError(w, http.StatusBadRequest, "item_id is required")
		return
	}
	if req.Adjustment == 0 {
		writeError(w, http.StatusBadRequest, "adjustment must be non-zero")
		return
	}

	item, err := s.orchestrator.QueueManualAdjustment(r.Context(), req)
	if err != nil {
		s.logger.Error().Err(err).Int64("item_id", req.ItemID).Msg("manual adjustment failed")
		writeError(w, http.StatusInternalServerError, "failed to queue adjustment")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"work_item": item})
}

func (s *Server) handleListQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	items, err := s.db.ListWorkItems(r.Context(), s.cfg.QBWC.OrganizationID, queryLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list queue")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleListSyncLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries, err := s.db.ListSyncLogEntries(r.Context(), s.cfg.QBWC.OrganizationID, queryLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sync log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleExportSyncLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries, err := s.db.ListSyncLogEntries(r.Context(), s.cfg.QBWC.OrganizationID, queryLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list sync log")
		return
	}

	file, err := export.SyncLogWorkbook(entries)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build export")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="sync_log.xlsx"`)
	if err := file.Write(w); err != nil {
		s.logger.Error().Err(err).Msg("failed to write export")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryLimit(r *http.Request) int {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}
	return limit
}
