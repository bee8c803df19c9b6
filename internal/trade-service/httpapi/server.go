package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/dto"
	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/intake"
	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/ledger"
	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/orders"
	"github.com/radieske/crypto-options-platform-poc/internal/trade-service/outcome"
)

// Server expõe a API pública do trade-service
type Server struct {
	Log    *zap.Logger
	Intake *intake.Service
	Store  orders.Store
	Ledger ledger.Ledger
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/orders", s.placeOrder)
	r.Get("/v1/orders", s.listOrders)
	r.Get("/v1/balance", s.getBalance)
	r.Post("/v1/balance/deposit", s.deposit)
	r.Put("/v1/users/{id}/bias", s.setBias)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, dto.ErrorResponse{Error: msg})
}

func (s *Server) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}

	o, err := s.Intake.PlaceOrder(r.Context(), intake.PlaceOrderParams{
		UserID:          req.UserID,
		Symbol:          req.Symbol,
		Direction:       req.Direction,
		AmountCents:     req.AmountCents,
		DurationSec:     req.DurationSec,
		EntryPrice:      req.EntryPrice,
		ActualDirection: req.ActualDirection,
	})
	if err != nil {
		switch {
		case errors.Is(err, orders.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ledger.ErrInsufficientFunds):
			writeError(w, http.StatusConflict, "insufficient funds")
		default:
			s.Log.Error("place order", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, dto.PlaceOrderResponse{
		OrderID:    o.ID,
		Status:     o.Status,
		EntryPrice: o.EntryPrice,
		ExpiresAt:  o.ExpiresAt,
	})
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId required")
		return
	}

	list, err := s.Store.ListByUser(r.Context(), userID)
	if err != nil {
		s.Log.Error("list orders", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]dto.OrderResponse, 0, len(list))
	for _, o := range list {
		out = append(out, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func toOrderResponse(o *orders.Order) dto.OrderResponse {
	return dto.OrderResponse{
		OrderID:            o.ID,
		Symbol:             o.Symbol,
		AmountCents:        o.AmountCents,
		RequestedDirection: string(o.RequestedDirection),
		EffectiveDirection: string(o.EffectiveDirection),
		DurationSec:        o.DurationSec,
		EntryPrice:         o.EntryPrice,
		ExitPrice:          o.ExitPrice,
		ProfitLossCents:    o.ProfitLossCents,
		Status:             o.Status,
		CreatedAt:          o.CreatedAt,
		ExpiresAt:          o.ExpiresAt,
		SettledAt:          o.SettledAt,
	}
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId required")
		return
	}

	acc, err := s.Ledger.GetOrCreate(r.Context(), userID)
	if err != nil {
		s.Log.Error("get balance", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, dto.BalanceResponse{
		UserID:         acc.UserID,
		BalanceCents:   acc.BalanceCents,
		AvailableCents: acc.AvailableCents,
		FrozenCents:    acc.FrozenCents,
		Bias:           string(acc.Bias),
	})
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req dto.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.UserID == "" || req.AmountCents <= 0 {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	acc, err := s.Ledger.Deposit(r.Context(), req.UserID, req.AmountCents)
	if err != nil {
		s.Log.Error("deposit", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, dto.BalanceResponse{
		UserID:         acc.UserID,
		BalanceCents:   acc.BalanceCents,
		AvailableCents: acc.AvailableCents,
		FrozenCents:    acc.FrozenCents,
		Bias:           string(acc.Bias),
	})
}

// setBias é a superfície administrativa do override de resultado
func (s *Server) setBias(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	var req dto.SetBiasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	bias, err := outcome.ParseBias(req.Bias)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.Ledger.SetBias(r.Context(), userID, bias); err != nil {
		s.Log.Error("set bias", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
