package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/papertrade/internal/domain"
	"github.com/vadiminshakov/papertrade/internal/services/pricefeed"
	"github.com/vadiminshakov/papertrade/pkg/indicators"
)

const maxChartPoints = 2000

// TestnetTradeRequest body of POST /testnet/trade.
type TestnetTradeRequest struct {
	Coin   string          `json:"coin"`
	Type   string          `json:"type"`
	Amount decimal.Decimal `json:"amount"`
}

// TestnetTradeResponse wallet after the trade and the appended record.
// Rejected trades carry the error fields too.
type TestnetTradeResponse struct {
	Wallet  domain.WalletState `json:"wallet"`
	Trade   domain.TradeRecord `json:"trade"`
	Error   string             `json:"error,omitempty"`
	Message string             `json:"message,omitempty"`
}

// TestnetWalletResponse cash, holdings of the requested coin and every holding.
type TestnetWalletResponse struct {
	Coin     string                     `json:"coin"`
	Balance  decimal.Decimal            `json:"balance"`
	Shares   decimal.Decimal            `json:"shares"`
	Holdings map[string]decimal.Decimal `json:"holdings"`
	Value    decimal.Decimal            `json:"value"`
}

func (s *Server) handleCoins(w http.ResponseWriter, r *http.Request) {
	if s.deps.Market == nil {
		unavailable(w, "market")
		return
	}
	respondJSON(w, http.StatusOK, s.deps.Market.Coins())
}

func (s *Server) handleMarketChart(w http.ResponseWriter, r *http.Request) {
	if s.deps.Market == nil {
		unavailable(w, "market")
		return
	}
	symbol := strings.ToLower(mux.Vars(r)["symbol"])

	points, ok := chartPoints(w, r)
	if !ok {
		return
	}

	samples, err := s.deps.Market.History(symbol, points)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondChart(w, r, samples)
}

// chartPoints reads ?points=, answering 400 itself when it is out of range.
func chartPoints(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("points")
	if raw == "" {
		return pricefeed.DefaultPoints, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > maxChartPoints {
		respondError(w, http.StatusBadRequest, "InvalidPoints",
			"points must be an integer in [1, "+strconv.Itoa(maxChartPoints)+"]")
		return 0, false
	}
	return n, true
}

// respondChart writes samples, or samples with EMA and RSI when ?indicators=true.
func respondChart(w http.ResponseWriter, r *http.Request, samples []domain.PriceSample) {
	if withIndicators, _ := strconv.ParseBool(r.URL.Query().Get("indicators")); withIndicators {
		respondJSON(w, http.StatusOK, indicators.BuildChart(samples, 0, 0))
		return
	}
	respondJSON(w, http.StatusOK, samples)
}

func (s *Server) handleTestnetTrade(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ledger == nil || s.deps.Market == nil {
		unavailable(w, "testnet ledger")
		return
	}

	var req TestnetTradeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "InvalidTrade", err.Error())
		return
	}
	kind, err := domain.ParseTradeKind(req.Type)
	if err != nil {
		respondError(w, http.StatusBadRequest, "InvalidTrade", err.Error())
		return
	}
	if !req.Amount.IsPositive() {
		respondError(w, http.StatusBadRequest, "InvalidTrade", "amount must be greater than zero")
		return
	}
	coin := strings.ToLower(strings.TrimSpace(req.Coin))
	if coin == "" || !s.deps.Market.Has(coin) {
		respondError(w, http.StatusBadRequest, "UnknownCoin", "unknown coin "+strconv.Quote(req.Coin))
		return
	}

	wallet, rec, err := s.deps.Ledger.Trade(r.Context(), coin, kind, req.Amount)
	resp := TestnetTradeResponse{Wallet: wallet, Trade: rec}
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Warn("testnet trade failed", zap.String("coin", coin), zap.Error(err))
		}
		resp.Error = errorCode(err)
		resp.Message = err.Error()
		respondJSON(w, status, resp)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTestnetWallet(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ledger == nil {
		unavailable(w, "testnet ledger")
		return
	}
	coin := strings.ToLower(r.URL.Query().Get("coin"))
	if coin == "" {
		coin = strings.ToLower(s.cfg.Symbol)
	}

	wallet := s.deps.Ledger.Wallet(coin)
	respondJSON(w, http.StatusOK, TestnetWalletResponse{
		Coin:     coin,
		Balance:  wallet.Balance,
		Shares:   wallet.Shares,
		Holdings: s.deps.Ledger.Holdings(),
		Value:    s.deps.Ledger.Value(),
	})
}

func (s *Server) handleTradeHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ledger == nil {
		unavailable(w, "testnet ledger")
		return
	}
	records, err := s.deps.Ledger.History(mux.Vars(r)["symbol"])
	if err != nil {
		s.fail(w, errors.Wrapf(domain.ErrStoreUnavailable, "trade history: %v", err))
		return
	}
	if records == nil {
		records = []domain.TradeRecord{}
	}
	respondJSON(w, http.StatusOK, records)
}
