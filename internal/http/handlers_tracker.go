package http

import (
	"net/http"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

type transactionRequest struct {
	Type        string `json:"type"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Date        string `json:"date,omitempty"`
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listTransactions(w, r)
	case http.MethodPost:
		s.createTransaction(w, r)
	case http.MethodDelete:
		s.deleteTransaction(w, r)
	default:
		methodNotAllowed(w, "GET, POST, DELETE")
	}
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authorize(r); err != nil {
		writeError(w, r, err)
		return
	}
	s.applyPeriodParam(r)
	txs, err := s.tracker.Transactions(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if txs == nil {
		txs = core.Ledger{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) createTransaction(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authorize(r); err != nil {
		writeError(w, r, err)
		return
	}
	var req transactionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	date, ok := parseDate(req.Date)
	if !ok {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "invalid date"})
		return
	}
	tx, err := s.tracker.AddTransaction(r.Context(), services.AddTransactionInput{
		Type:        core.TransactionType(req.Type),
		Amount:      req.Amount,
		Category:    req.Category,
		Description: strings.TrimSpace(req.Description),
		Date:        date,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authorize(r); err != nil {
		writeError(w, r, err)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing id parameter"})
		return
	}
	if err := s.tracker.DeleteTransaction(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}
	if _, err := s.authorize(r); err != nil {
		writeError(w, r, err)
		return
	}
	s.applyPeriodParam(r)
	ov, err := s.tracker.Overview(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// applyPeriodParam switches the active period when the query names one.
// Unknown values fall back to all-time inside the service.
func (s *Server) applyPeriodParam(r *http.Request) {
	if v := strings.TrimSpace(r.URL.Query().Get("period")); v != "" {
		s.tracker.SetPeriod(core.Period(v))
	}
}

type categoriesResponse struct {
	Income  []string `json:"income"`
	Expense []string `json:"expense"`
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, "GET")
		return
	}
	writeJSON(w, http.StatusOK, categoriesResponse{
		Income:  core.IncomeCategories,
		Expense: core.ExpenseCategories,
	})
}
