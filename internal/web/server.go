// Package web exposes the testnet and synchronized trading surfaces over HTTP,
// server-sent events and websockets.
package web

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/vadiminshakov/papertrade/internal/domain"
	"github.com/vadiminshakov/papertrade/internal/events"
	"github.com/vadiminshakov/papertrade/internal/services/engine"
	"github.com/vadiminshakov/papertrade/internal/services/pricefeed"
	"github.com/vadiminshakov/papertrade/internal/storage/walletstore"
)

const (
	tradePollInterval = 2 * time.Second
	heartbeatInterval = 30 * time.Second
	shutdownTimeout   = 5 * time.Second
	defaultCertCache  = "cert-cache"
)

// Market is the simulated market backing the testnet routes.
type Market interface {
	Coins() []pricefeed.Coin
	Has(symbol string) bool
	History(symbol string, points int) ([]domain.PriceSample, error)
}

// Ledger is the testnet account.
type Ledger interface {
	Trade(ctx context.Context, symbol string, kind domain.TradeKind, amount decimal.Decimal) (domain.WalletState, domain.TradeRecord, error)
	Wallet(symbol string) domain.WalletState
	Holdings() map[string]decimal.Decimal
	Value() decimal.Decimal
	History(symbol string) ([]domain.TradeRecord, error)
	RecordsAfter(index uint64) ([]domain.TradeRecordEntry, error)
}

// Trader executes synchronized-mode trades.
type Trader interface {
	Trade(ctx context.Context, userID string, kind domain.TradeKind) (engine.Result, error)
	TradeIfRevision(ctx context.Context, userID string, kind domain.TradeKind, expected uint64) (engine.Result, error)
}

// WalletReader reads synchronized-mode wallets.
type WalletReader interface {
	Read(ctx context.Context, userID string) (domain.WalletState, error)
}

// versionedReader is implemented by wallet stores that expose revisions.
type versionedReader interface {
	ReadVersioned(ctx context.Context, userID string) (domain.WalletState, uint64, error)
}

// LiveMarket serves real prices for any coin id.
type LiveMarket interface {
	Markets(ctx context.Context, n int) ([]pricefeed.MarketCoin, error)
	Fetch(ctx context.Context, symbol string, points int) ([]domain.PriceSample, error)
}

// Session is one live portfolio view, started per streaming connection.
type Session interface {
	Start(ctx context.Context)
	Stop()
	Observe(fn func(domain.PortfolioView)) func()
}

// SessionFactory creates a stopped session for userID.
type SessionFactory func(userID string) (Session, error)

// Config http listener settings.
type Config struct {
	Addr        string
	Symbol      string
	CORSOrigins []string
	// TLSDomains enables ACME certificates for these hosts when not empty.
	TLSDomains []string
	CertCache  string
}

// Deps are the services behind the routes. A nil dependency makes its routes answer 503.
type Deps struct {
	Market     Market
	Live       LiveMarket
	Ledger     Ledger
	Trader     Trader
	Wallets    WalletReader
	Sessions   SessionFactory
	Portfolios *events.PortfolioBroadcaster
	Trades     *events.TradeBroadcaster
}

// Server http front of the simulator.
type Server struct {
	cfg      Config
	deps     Deps
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// ErrorResponse body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewServer creates a new web server instance.
func NewServer(cfg Config, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	return &Server{cfg: cfg, deps: deps, logger: logger, upgrader: newUpgrader(cfg.CORSOrigins)}
}

// Handler builds the routed handler wrapped in CORS.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	testnet := r.PathPrefix("/testnet").Subrouter()
	testnet.HandleFunc("/coins", s.handleCoins).Methods(http.MethodGet)
	testnet.HandleFunc("/market_chart/{symbol}", s.handleMarketChart).Methods(http.MethodGet)
	testnet.HandleFunc("/trade", s.handleTestnetTrade).Methods(http.MethodPost)
	testnet.HandleFunc("/wallet", s.handleTestnetWallet).Methods(http.MethodGet)
	// registered before /trades/{symbol} so "stream" is not taken for a coin
	testnet.HandleFunc("/trades/stream", s.handleTradeStream).Methods(http.MethodGet)
	testnet.HandleFunc("/trades/{symbol}", s.handleTradeHistory).Methods(http.MethodGet)

	live := r.PathPrefix("/live").Subrouter()
	live.HandleFunc("/coins", s.handleLiveCoins).Methods(http.MethodGet)
	live.HandleFunc("/market_chart/{id}", s.handleLiveChart).Methods(http.MethodGet)

	r.HandleFunc("/wallet/{userId}", s.handleWallet).Methods(http.MethodGet)
	r.HandleFunc("/wallet/{userId}/trade", s.handleWalletTrade).Methods(http.MethodPost)
	r.HandleFunc("/portfolio/stream", s.handlePortfolioBroadcast).Methods(http.MethodGet)
	r.HandleFunc("/portfolio/{userId}/stream", s.handlePortfolioStream).Methods(http.MethodGet)
	r.HandleFunc("/portfolio/{userId}/ws", s.handlePortfolioWebSocket).Methods(http.MethodGet)

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Last-Event-ID", "If-Match"},
		ExposedHeaders:   []string{"ETag"},
		AllowCredentials: false,
	})
	return c.Handler(r)
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
// With TLS domains configured it serves HTTPS and answers ACME challenges on :80.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(s.cfg.TLSDomains) > 0 {
		return s.startWithAutoTLS(ctx)
	}

	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", zap.String("addr", s.cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server")
	}
	return nil
}

func (s *Server) startWithAutoTLS(ctx context.Context) error {
	cacheDir := s.cfg.CertCache
	if cacheDir == "" {
		cacheDir = defaultCertCache
	}
	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(s.cfg.TLSDomains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 5 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12
	httpsSrv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("acme server shutdown", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("https server shutdown", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("acme server", zap.Error(err))
		}
	}()

	s.logger.Info("https server listening",
		zap.String("addr", s.cfg.Addr),
		zap.Strings("domains", s.cfg.TLSDomains))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "https server")
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":  "ok",
		"symbol":  s.cfg.Symbol,
		"testnet": s.deps.Ledger != nil,
		"live":    s.deps.Live != nil,
		"wallets": s.deps.Wallets != nil,
	}
	if s.deps.Portfolios != nil {
		body["portfolio_subscribers"] = s.deps.Portfolios.Subscribers()
	}
	respondJSON(w, http.StatusOK, body)
}

// statusFor maps the error taxonomy onto http status codes.
func statusFor(err error) int {
	var rejection *domain.Rejection
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &rejection):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrBusy), errors.Is(err, domain.ErrRevisionMismatch):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidTrade), errors.Is(err, walletstore.ErrInvalidUserID):
		return http.StatusBadRequest
	case errors.Is(err, pricefeed.ErrUnknownCoin):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientBalance), errors.Is(err, domain.ErrNoHoldings),
		errors.Is(err, domain.ErrInvalidPrice), errors.Is(err, domain.ErrNegativeState):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrStoreUnavailable), errors.Is(err, domain.ErrFeedUnavailable),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorCode is the stable code for err, with unknown coin and invalid user made explicit.
func errorCode(err error) string {
	switch {
	case errors.Is(err, pricefeed.ErrUnknownCoin):
		return "UnknownCoin"
	case errors.Is(err, walletstore.ErrInvalidUserID):
		return "InvalidUserID"
	default:
		return domain.ReasonCode(err)
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: code, Message: message})
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", zap.Int("status", status), zap.Error(err))
	}
	respondError(w, status, errorCode(err), err.Error())
}

func unavailable(w http.ResponseWriter, what string) {
	respondError(w, http.StatusServiceUnavailable, "Unavailable", what+" not available")
}
