package web

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/papertrade/internal/domain"
	"github.com/vadiminshakov/papertrade/internal/services/engine"
)

const maxBodyBytes = 1 << 16

// WalletTradeRequest body of POST /wallet/{userId}/trade.
type WalletTradeRequest struct {
	Type string `json:"type"`
}

// WalletTradeResponse state after an executed trade and the price it ran at.
type WalletTradeResponse struct {
	UserID string             `json:"user_id"`
	Type   domain.TradeKind   `json:"type"`
	Price  domain.PriceSample `json:"price"`
	Wallet domain.WalletState `json:"wallet"`
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	if s.deps.Wallets == nil {
		unavailable(w, "wallet store")
		return
	}
	userID := mux.Vars(r)["userId"]

	if versioned, ok := s.deps.Wallets.(versionedReader); ok {
		wallet, rev, err := versioned.ReadVersioned(r.Context(), userID)
		if err != nil {
			s.fail(w, err)
			return
		}
		setRevision(w, rev)
		respondJSON(w, http.StatusOK, wallet)
		return
	}

	wallet, err := s.deps.Wallets.Read(r.Context(), userID)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, wallet)
}

func (s *Server) handleWalletTrade(w http.ResponseWriter, r *http.Request) {
	if s.deps.Trader == nil {
		unavailable(w, "trade executor")
		return
	}
	userID := mux.Vars(r)["userId"]

	var req WalletTradeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "InvalidTrade", err.Error())
		return
	}
	kind, err := domain.ParseTradeKind(req.Type)
	if err != nil {
		respondError(w, http.StatusBadRequest, "InvalidTrade", err.Error())
		return
	}

	expected, conditional, err := ifMatchRevision(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "InvalidRevision", err.Error())
		return
	}

	var res engine.Result
	if conditional {
		res, err = s.deps.Trader.TradeIfRevision(r.Context(), userID, kind, expected)
	} else {
		res, err = s.deps.Trader.Trade(r.Context(), userID, kind)
	}
	if err != nil {
		if conditional && errors.Is(err, domain.ErrRevisionMismatch) {
			setRevision(w, res.Revision)
		}
		s.fail(w, err)
		return
	}
	if conditional {
		setRevision(w, res.Revision)
	}
	respondJSON(w, http.StatusOK, WalletTradeResponse{
		UserID: userID,
		Type:   kind,
		Price:  res.Price,
		Wallet: res.After,
	})
}

// ifMatchRevision parses an If-Match header carrying a wallet revision ETag.
func ifMatchRevision(r *http.Request) (uint64, bool, error) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" {
		return 0, false, nil
	}
	rev, err := strconv.ParseUint(strings.Trim(raw, `"`), 10, 64)
	if err != nil {
		return 0, false, errors.Errorf("If-Match must be a wallet revision, got %s", raw)
	}
	return rev, true, nil
}

func setRevision(w http.ResponseWriter, rev uint64) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatUint(rev, 10)))
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		return errors.Wrap(err, "invalid request body")
	}
	return nil
}
