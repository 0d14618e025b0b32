package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
)

const (
	defaultLiveCoins = 20
	maxLiveCoins     = 250
)

func (s *Server) handleLiveCoins(w http.ResponseWriter, r *http.Request) {
	if s.deps.Live == nil {
		unavailable(w, "live market")
		return
	}

	limit := defaultLiveCoins
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxLiveCoins {
			respondError(w, http.StatusBadRequest, "InvalidLimit",
				"limit must be an integer in [1, "+strconv.Itoa(maxLiveCoins)+"]")
			return
		}
		limit = n
	}

	coins, err := s.deps.Live.Markets(r.Context(), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, coins)
}

func (s *Server) handleLiveChart(w http.ResponseWriter, r *http.Request) {
	if s.deps.Live == nil {
		unavailable(w, "live market")
		return
	}
	id := strings.ToLower(mux.Vars(r)["id"])

	points, ok := chartPoints(w, r)
	if !ok {
		return
	}

	samples, err := s.deps.Live.Fetch(r.Context(), id, points)
	if err != nil {
		s.fail(w, err)
		return
	}
	respondChart(w, r, samples)
}
