package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cassa/internal/core"
	"cassa/internal/services"
)

// Wire names for transaction kinds. The JSON API keeps the legacy values the
// dashboard already understands.
var kindWireNames = map[core.Kind]string{
	core.KindClosing:    "daily_closing",
	core.KindWithdrawal: "cash_withdrawal",
	core.KindDeposit:    "cash_deposit",
	core.KindSpending:   "cash_spending",
}

type closingRequest struct {
	SessionID  string `json:"sessionId"`
	PersonName string `json:"personName"`
	PhotoPath  string `json:"photoPath"`
	core.DenominationCounts
}

type withdrawalRequest struct {
	SessionID     string  `json:"sessionId"`
	PhotoPath     string  `json:"photoPath"`
	RecipientName string  `json:"recipientName"`
	Amount        float64 `json:"amount"`
	Reason        string  `json:"reason"`
}

type spendingRequest struct {
	SessionID   string  `json:"sessionId"`
	PhotoPath   string  `json:"photoPath"`
	UserName    string  `json:"userName"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
}

type transactionResponse struct {
	ID                  int64    `json:"id"`
	TransactionID       string   `json:"transaction_id"`
	Type                string   `json:"type"`
	UserName            string   `json:"user_name,omitempty"`
	Amount              float64  `json:"amount"`
	PhotoPath           string   `json:"photo_path,omitempty"`
	RecipientName       string   `json:"recipient_name,omitempty"`
	WithdrawalReason    string   `json:"withdrawal_reason,omitempty"`
	SpendingDescription string   `json:"spending_description,omitempty"`
	SpendingCategory    string   `json:"spending_category,omitempty"`
	Bills100            *int64   `json:"bills_100,omitempty"`
	Bills50             *int64   `json:"bills_50,omitempty"`
	Bills20             *int64   `json:"bills_20,omitempty"`
	Bills10             *int64   `json:"bills_10,omitempty"`
	Bills5              *int64   `json:"bills_5,omitempty"`
	CoinsToonies        *int64   `json:"coins_toonies,omitempty"`
	CoinsLoonies        *int64   `json:"coins_loonies,omitempty"`
	CoinsQuarters       *int64   `json:"coins_quarters,omitempty"`
	CoinsDimes          *int64   `json:"coins_dimes,omitempty"`
	CoinsNickels        *int64   `json:"coins_nickels,omitempty"`
	CoinsPennies        *int64   `json:"coins_pennies,omitempty"`
	CreatedAt           string   `json:"created_at"`
}

func (s *Server) handleDailyClosing(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req closingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}

	res, err := s.recorder.RecordClosing(r.Context(), core.Closing{
		PersonName: req.PersonName,
		Counts:     req.DenominationCounts,
		PhotoRef:   req.PhotoPath,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	s.invalidateTransactions()
	observeTransaction(core.KindClosing)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"transactionId": res.TransactionID,
		"totalAmount":   res.Total.Dollars(),
	})
}

func (s *Server) handleCashWithdrawal(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req withdrawalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}

	res, err := s.recorder.RecordWithdrawal(r.Context(), core.Withdrawal{
		Recipient: req.RecipientName,
		Amount:    core.Money{Cents: core.CentsFromDollars(req.Amount)},
		Reason:    req.Reason,
		PhotoRef:  req.PhotoPath,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	s.invalidateTransactions()
	observeTransaction(core.KindWithdrawal)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"transactionId": res.TransactionID,
		"message":       res.Message,
	})
}

func (s *Server) handleCashSpending(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req spendingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}

	res, err := s.recorder.RecordSpending(r.Context(), core.Spending{
		PersonName:  req.UserName,
		Amount:      core.Money{Cents: core.CentsFromDollars(req.Amount)},
		Description: req.Description,
		Category:    req.Category,
		PhotoRef:    req.PhotoPath,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	s.invalidateTransactions()
	observeTransaction(core.KindSpending)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"transactionId": res.TransactionID,
		"message":       res.Message,
		"newBalance":    res.Person.Balance.Dollars(),
	})
}

func (s *Server) handleCashBalance(w http.ResponseWriter, r *http.Request) {
	tb, err := s.query.TillBalance(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_till_cash": tb.Total.Dollars(),
		"last_updated":    tb.UpdatedAt.UTC().Format(time.RFC3339),
		"updated_by":      tb.UpdatedBy,
	})
}

func (s *Server) handleUserBalances(w http.ResponseWriter, r *http.Request) {
	persons, err := s.query.PersonBalances(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := make([]map[string]any, 0, len(persons))
	for _, p := range persons {
		resp = append(resp, map[string]any{
			"id":         p.ID,
			"name":       p.Name,
			"total_cash": p.Balance.Dollars(),
			"updated_at": p.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit := services.DefaultTransactionLimit
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}
	if limit > services.MaxTransactionLimit {
		limit = services.MaxTransactionLimit
	}

	txns, err := s.cachedTransactions(r.Context(), limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := make([]transactionResponse, 0, len(txns))
	for _, t := range txns {
		resp = append(resp, toTransactionResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReconcile replays the log against the till aggregate. With
// ?repair=true the stored total is overwritten by the replayed one.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	repair := false
	if v := strings.TrimSpace(r.URL.Query().Get("repair")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid repair flag"})
			return
		}
		repair = b
	}

	report, err := s.recorder.Reconcile(r.Context(), repair)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"stored":       report.Stored.Dollars(),
		"computed":     report.Computed.Dollars(),
		"drift":        report.Drift.Dollars(),
		"transactions": report.Transactions,
		"repaired":     report.Repaired,
	})
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	resp := transactionResponse{
		ID:                  t.ID,
		TransactionID:       t.TransactionID,
		Type:                kindWireNames[t.Kind],
		UserName:            t.PersonName,
		Amount:              t.Amount.Dollars(),
		PhotoPath:           t.PhotoRef,
		RecipientName:       t.Recipient,
		WithdrawalReason:    t.Reason,
		SpendingDescription: t.Description,
		SpendingCategory:    t.Category,
		CreatedAt:           t.CreatedAt.UTC().Format(time.RFC3339),
	}

	if t.Kind == core.KindClosing {
		c := t.Counts
		resp.Bills100 = &c.Bills100
		resp.Bills50 = &c.Bills50
		resp.Bills20 = &c.Bills20
		resp.Bills10 = &c.Bills10
		resp.Bills5 = &c.Bills5
		resp.CoinsToonies = &c.Toonies
		resp.CoinsLoonies = &c.Loonies
		resp.CoinsQuarters = &c.Quarters
		resp.CoinsDimes = &c.Dimes
		resp.CoinsNickels = &c.Nickels
		resp.CoinsPennies = &c.Pennies
	}

	return resp
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return false
	}
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		slog.ErrorContext(r.Context(), "Request body decode error", "error", err, "url", r.URL.Path)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Response encode error", "error", err)
	}
}

// writeDomainError maps domain rejections onto HTTP statuses. Anything not
// recognized is a 500 with the detail kept out of the response body.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": ve.Error()})
		return
	}

	var ife *core.InsufficientFundsError
	if errors.As(err, &ife) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":     "Insufficient cash balance",
			"available": ife.Available.Dollars(),
		})
		return
	}

	switch {
	case errors.Is(err, core.ErrPersonNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
	case errors.Is(err, core.ErrDuplicateTransaction):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "Transaction already recorded"})
	default:
		slog.ErrorContext(r.Context(), "Request failed", "error", err, "url", r.URL.Path)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
