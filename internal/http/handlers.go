package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"ledger/internal/ledger"
	applog "ledger/internal/log"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		http.Error(w, "ledger not loaded", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	records, snap, version := s.ledger.State()
	writeJSON(w, http.StatusOK, struct {
		Transactions []transactionJSON `json:"transactions"`
		Snapshot     snapshotJSON      `json:"snapshot"`
		Version      int64             `json:"version"`
	}{
		Transactions: toTransactionsJSON(records),
		Snapshot:     toSnapshotJSON(snap),
		Version:      version,
	})
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	logger := applog.FromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tx, snap, err := s.ledger.AddTransaction(r.Context(), in)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.LogError(r.Context(), "Create transaction failed", err, applog.OpCreate, applog.ErrorTypeInternal, nil)
		writeError(w, http.StatusInternalServerError, "failed to record transaction")
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Transaction transactionJSON `json:"transaction"`
		Snapshot    snapshotJSON    `json:"snapshot"`
	}{toTransactionJSON(tx), toSnapshotJSON(snap)})
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	logger := applog.FromContext(r.Context())

	id, err := strconv.ParseInt(strings.TrimSpace(r.PathValue("id")), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "transaction id must be an integer")
		return
	}

	snap, err := s.ledger.DeleteTransaction(r.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		logger.LogError(r.Context(), "Delete transaction failed", err, applog.OpDelete, applog.ErrorTypeInternal,
			applog.NewFields().WithTransaction(id, "", 0, ""))
		writeError(w, http.StatusInternalServerError, "failed to delete transaction")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Snapshot snapshotJSON `json:"snapshot"`
	}{toSnapshotJSON(snap)})
}

// handleTopCategories serves the spending ranking. Results are cached per
// ledger version, so a mutation makes every older entry unreachable.
func (s *Server) handleTopCategories(w http.ResponseWriter, r *http.Request) {
	limit := defaultTopLimit
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = min(n, maxTopLimit)
	}

	version := s.ledger.Version()
	key := topKey{version: version, limit: limit}

	ranked, hit := s.topCache.Get(key)
	if !hit {
		ranked = toCategoriesJSON(s.ledger.TopCategories(limit))
		if s.ledger.Version() == version {
			s.topCache.Set(key, ranked)
		}
	}
	applog.FromContext(r.Context()).DebugContext(r.Context(), "Top categories served",
		"limit", limit, applog.FieldVersion, version, "cache_hit", hit)

	writeJSON(w, http.StatusOK, struct {
		Categories []categoryJSON `json:"categories"`
		Limit      int            `json:"limit"`
	}{ranked, limit})
}
