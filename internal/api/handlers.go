package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"toplist-tracker-go/internal/models"
	"toplist-tracker-go/internal/parser"
	"toplist-tracker-go/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultHistoryDays = 90
	defaultTraderDays  = 30
)

var defaultMinAmount = decimal.NewFromInt(1000000)

// DetailsResponse lists the trader lines of one disclosure by side.
type DetailsResponse struct {
	DisclosureID uint                    `json:"disclosure_id"`
	Buy          []models.DisclosureLine `json:"buy"`
	Sell         []models.DisclosureLine `json:"sell"`
}

// HistoryResponse is the recent activity of one trader desk.
type HistoryResponse struct {
	TraderName string                     `json:"trader_name"`
	Since      string                     `json:"since"`
	History    []store.TraderHistoryEntry `json:"history"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *Server) handleStocks(w http.ResponseWriter, r *http.Request) {
	items, err := s.queries.ListSecurities(r.Context())
	if err != nil {
		s.serverError(w, "Failed to list securities", err)
		return
	}
	s.writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleTopList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := parseDate(q.Get("date"))
	if err != nil {
		s.badRequest(w, err)
		return
	}
	limit, err := parseInt(q.Get("limit"), 0)
	if err != nil {
		s.badRequest(w, err)
		return
	}

	items, err := s.queries.ListDisclosures(r.Context(), store.DisclosureFilter{
		Date:   date,
		Market: strings.ToUpper(strings.TrimSpace(q.Get("market"))),
		Limit:  limit,
	})
	if err != nil {
		s.serverError(w, "Failed to list disclosures", err)
		return
	}
	s.writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleTopListDetails(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.badRequest(w, fmt.Errorf("invalid disclosure id %q", chi.URLParam(r, "id")))
		return
	}

	key := fmt.Sprintf("toplist:details:%d", id)
	s.cached(w, r, key, s.detailsTTL, func(ctx context.Context) (any, error) {
		lines, err := s.queries.ListDisclosureLines(ctx, uint(id))
		if err != nil {
			return nil, err
		}
		resp := DetailsResponse{
			DisclosureID: uint(id),
			Buy:          []models.DisclosureLine{},
			Sell:         []models.DisclosureLine{},
		}
		for _, l := range lines {
			if l.Direction == models.DirectionBuy {
				resp.Buy = append(resp.Buy, l)
			} else {
				resp.Sell = append(resp.Sell, l)
			}
		}
		return resp, nil
	})
}

func (s *Server) handleTraders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	minAmount := defaultMinAmount
	if v := strings.TrimSpace(q.Get("min_amount")); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			s.badRequest(w, fmt.Errorf("invalid min_amount %q", v))
			return
		}
		minAmount = d
	}
	days, err := parseInt(q.Get("days"), defaultTraderDays)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	limit, err := parseInt(q.Get("limit"), 0)
	if err != nil {
		s.badRequest(w, err)
		return
	}

	items, err := s.queries.ListTraderSummaries(r.Context(), store.TraderFilter{
		MinAmount:    minAmount,
		UpdatedSince: s.now().AddDate(0, 0, -days),
		Limit:        limit,
	})
	if err != nil {
		s.serverError(w, "Failed to list trader summaries", err)
		return
	}
	s.writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleTraderHistory(w http.ResponseWriter, r *http.Request) {
	raw, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		s.badRequest(w, fmt.Errorf("invalid trader name"))
		return
	}
	name := parser.NormalizeTraderName(raw)
	if name == "" {
		s.badRequest(w, fmt.Errorf("trader name is required"))
		return
	}
	days, err := parseInt(r.URL.Query().Get("days"), defaultHistoryDays)
	if err != nil {
		s.badRequest(w, err)
		return
	}

	since := startOfDay(s.now()).AddDate(0, 0, -days)
	history, err := s.queries.TraderHistory(r.Context(), name, since)
	if err != nil {
		s.serverError(w, "Failed to load trader history", err)
		return
	}
	if history == nil {
		history = []store.TraderHistoryEntry{}
	}
	s.writeJSON(w, http.StatusOK, HistoryResponse{
		TraderName: name,
		Since:      since.Format(parser.DateLayout),
		History:    history,
	})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		s.badRequest(w, err)
		return
	}
	if date.IsZero() {
		date = startOfDay(s.now())
	}

	key := "overview:" + date.Format(parser.DateLayout)
	s.cached(w, r, key, overviewTTL, func(ctx context.Context) (any, error) {
		return s.queries.MarketOverview(ctx, date)
	})
}

// cached serves key from the cache, or renders it with load and stores it for ttl. Cache
// failures only cost a cache miss.
func (s *Server) cached(w http.ResponseWriter, r *http.Request, key string, ttl time.Duration, load func(ctx context.Context) (any, error)) {
	ctx := r.Context()
	if body, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "HIT")
		w.Write(body)
		return
	}

	v, err := load(ctx)
	if err != nil {
		s.serverError(w, "Failed to load "+key, err)
		return
	}
	body, err := json.Marshal(v)
	if err != nil {
		s.serverError(w, "Failed to encode response", err)
		return
	}
	if err := s.cache.Set(ctx, key, body, ttl); err != nil {
		s.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "MISS")
	w.Write(body)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
}

func (s *Server) serverError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, zap.Error(err))
	s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msg})
}

func parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(parser.DateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", v)
	}
	return t, nil
}

func parseInt(v string, fallback int) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid number %q", v)
	}
	return n, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
