package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/papertrade/internal/domain"
)

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseWriter{w: w, flusher: flusher}, true
}

// event writes one event; id 0 omits the id line.
func (s *sseWriter) event(name string, id uint64, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	if id > 0 {
		fmt.Fprintf(s.w, "id: %d\n", id)
	}
	fmt.Fprintf(s.w, "event: %s\n", name)
	fmt.Fprintf(s.w, "data: %s\n\n", payload)
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) ping() {
	fmt.Fprintf(s.w, ": ping\n\n")
	s.flusher.Flush()
}

// handleTradeStream replays the trade log after Last-Event-ID and then follows it.
// Live entries come from the trade broadcaster; the poll catches anything it dropped.
func (s *Server) handleTradeStream(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ledger == nil {
		unavailable(w, "testnet ledger")
		return
	}

	var live chan domain.TradeRecordEntry
	if s.deps.Trades != nil {
		live = s.deps.Trades.Subscribe()
		defer s.deps.Trades.Unsubscribe(live)
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	pollTicker := time.NewTicker(tradePollInterval)
	defer pollTicker.Stop()

	lastIndex := parseLastEventID(r.Header.Get("Last-Event-ID"), r.URL.Query().Get("last_event_id"))
	send := func(e domain.TradeRecordEntry) error {
		if err := sse.event("trade", e.Index, e.Record); err != nil {
			return err
		}
		lastIndex = e.Index
		return nil
	}
	catchUp := func() error {
		entries, err := s.deps.Ledger.RecordsAfter(lastIndex)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := send(e); err != nil {
				return err
			}
		}
		return nil
	}

	if err := catchUp(); err != nil {
		s.logger.Warn("trade stream initial load", zap.Error(err))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			sse.ping()
		case <-pollTicker.C:
			if err := catchUp(); err != nil {
				s.logger.Warn("trade stream poll", zap.Error(err))
			}
		case e, ok := <-live:
			if !ok {
				live = nil
				continue
			}
			if e.Index <= lastIndex {
				continue
			}
			var err error
			if e.Index == lastIndex+1 {
				err = send(e)
			} else {
				err = catchUp()
			}
			if err != nil {
				s.logger.Warn("trade stream send", zap.Error(err))
			}
		}
	}
}

// handlePortfolioStream runs a session for the connection and pushes every view.
func (s *Server) handlePortfolioStream(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sessions == nil {
		unavailable(w, "portfolio sessions")
		return
	}
	userID := mux.Vars(r)["userId"]
	session, err := s.deps.Sessions(userID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "InvalidUserID", err.Error())
		return
	}

	views := newViewMailbox()
	cancelObserve := session.Observe(views.put)
	defer cancelObserve()
	session.Start(r.Context())
	defer session.Stop()

	sse, ok := newSSEWriter(w)
	if !ok {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			sse.ping()
		case view := <-views.ch:
			if err := sse.event("portfolio", 0, view); err != nil {
				s.logger.Warn("portfolio stream send", zap.String("user", userID), zap.Error(err))
			}
		}
	}
}

// handlePortfolioBroadcast forwards every view published by the configured sessions.
func (s *Server) handlePortfolioBroadcast(w http.ResponseWriter, r *http.Request) {
	if s.deps.Portfolios == nil {
		unavailable(w, "portfolio broadcaster")
		return
	}
	ch := s.deps.Portfolios.Subscribe()
	defer s.deps.Portfolios.Unsubscribe(ch)

	sse, ok := newSSEWriter(w)
	if !ok {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			sse.ping()
		case view, ok := <-ch:
			if !ok {
				return
			}
			if err := sse.event("portfolio", 0, view); err != nil {
				s.logger.Warn("portfolio broadcast send", zap.Error(err))
			}
		}
	}
}

// viewMailbox keeps only the newest undelivered view so a slow client never
// blocks the session. It expects a single producer.
type viewMailbox struct {
	ch chan domain.PortfolioView
}

func newViewMailbox() *viewMailbox {
	return &viewMailbox{ch: make(chan domain.PortfolioView, 1)}
}

func (m *viewMailbox) put(v domain.PortfolioView) {
	for {
		select {
		case m.ch <- v:
			return
		default:
		}
		select {
		case <-m.ch:
		default:
		}
	}
}

// parseLastEventID extracts an SSE event ID from either the Last-Event-ID header or a query parameter.
func parseLastEventID(headerVal, queryVal string) uint64 {
	idStr := strings.TrimSpace(headerVal)
	if idStr == "" {
		idStr = strings.TrimSpace(queryVal)
	}
	if idStr == "" {
		return 0
	}
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
