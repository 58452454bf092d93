// Package web serves the operator API: health, metrics, lunar conversion,
// upcoming anniversaries and a manual trigger for the daily check.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lunaralarm/internal/anniversary"
	"lunaralarm/internal/app"
	"lunaralarm/internal/config"
	appLog "lunaralarm/internal/log"
	"lunaralarm/internal/lunar"
	"lunaralarm/internal/metrics"
	"lunaralarm/internal/notify"
)

// Checker runs the daily check for a given day.
type Checker interface {
	Run(ctx context.Context, today time.Time) (app.Result, error)
	Location() *time.Location
}

// UpcomingLister lists anniversaries in the next few days.
type UpcomingLister interface {
	Upcoming(ctx context.Context, today time.Time, days int) ([]anniversary.Candidate, error)
}

const (
	defaultUpcomingDays = 30
	maxUpcomingDays     = 400
	upcomingCacheTTL    = 30 * time.Second
)

// Server provides the HTTP API.
type Server struct {
	cfg      *config.Config
	checker  Checker
	upcoming UpcomingLister
	loc      *time.Location
	now      func() time.Time
	router   *chi.Mux

	// /api/upcoming fetches and scans the feeds; repeated page loads reuse
	// the last answer for a short while.
	upcomingMu    sync.RWMutex
	upcomingCache map[string]upcomingCacheEntry
}

type upcomingCacheEntry struct {
	resp      upcomingResponse
	updatedAt time.Time
}

// NewServer constructs a Server and registers its routes.
func NewServer(cfg *config.Config, checker Checker, upcoming UpcomingLister) *Server {
	loc := time.Local
	if checker != nil && checker.Location() != nil {
		loc = checker.Location()
	}
	s := &Server{
		cfg:           cfg,
		checker:       checker,
		upcoming:      upcoming,
		loc:           loc,
		now:           time.Now,
		router:        chi.NewRouter(),
		upcomingCache: make(map[string]upcomingCacheEntry),
	}
	s.registerRoutes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(metricsMiddleware)

	// /health is always reachable without credentials.
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.basicAuthEnabled() {
			appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
			r.Use(s.basicAuthMiddleware)
		}
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
		r.Route("/api", func(r chi.Router) {
			r.Get("/convert", s.handleConvert)
			r.Get("/upcoming", s.handleUpcoming)
			r.Post("/check", s.handleCheck)
		})
	})
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		appLog.Info("HTTP server stopped")
		return nil
	}
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="lunaralarm", charset="UTF-8"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// metricsMiddleware records request latency by route pattern, so path
// parameters and unknown paths do not explode label cardinality.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequestDuration(r.Method, route, strconv.Itoa(status), time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type convertResponse struct {
	Solar     string     `json:"solar"`
	Lunar     lunar.Date `json:"lunar"`
	LunarText string     `json:"lunar_text"`
	LeapMonth int        `json:"leap_month,omitempty"`
}

// GET /api/convert?solar=2025-02-12
// GET /api/convert?lunar=2025-01-15&leap=false
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	switch {
	case q.Get("solar") != "":
		t, err := time.ParseInLocation(time.DateOnly, q.Get("solar"), s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "solar must be YYYY-MM-DD")
			return
		}
		d, err := lunar.FromSolar(t)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, convertResponse{
			Solar:     t.Format(time.DateOnly),
			Lunar:     d,
			LunarText: lunar.FormatKorean(d),
			LeapMonth: lunar.LeapMonth(d.Year),
		})

	case q.Get("lunar") != "":
		y, m, d, ok := parseDateParts(q.Get("lunar"))
		if !ok {
			writeError(w, http.StatusBadRequest, "lunar must be YYYY-MM-DD")
			return
		}
		leap, _ := strconv.ParseBool(q.Get("leap"))
		t, ok := lunar.ToSolar(y, m, d, leap, s.loc)
		if !ok {
			writeError(w, http.StatusUnprocessableEntity, "no such lunar date")
			return
		}
		ld := lunar.Date{Year: y, Month: m, Day: d, Leap: leap}
		writeJSON(w, http.StatusOK, convertResponse{
			Solar:     t.Format(time.DateOnly),
			Lunar:     ld,
			LunarText: lunar.FormatKorean(ld),
			LeapMonth: lunar.LeapMonth(y),
		})

	default:
		writeError(w, http.StatusBadRequest, "one of solar or lunar is required")
	}
}

// parseDateParts splits YYYY-MM-DD without validating it against the
// solar calendar (lunar months have a 30th day where February does not).
func parseDateParts(s string) (y, m, d int, ok bool) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	var err error
	if y, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, 0, false
	}
	if m, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, 0, false
	}
	if d, err = strconv.Atoi(parts[2]); err != nil {
		return 0, 0, 0, false
	}
	return y, m, d, true
}

type upcomingDTO struct {
	EventID   string     `json:"event_id"`
	Summary   string     `json:"summary"`
	Date      string     `json:"date"`
	DaysLeft  int        `json:"days_left"`
	Lunar     lunar.Date `json:"lunar"`
	LunarText string     `json:"lunar_text"`
}

type upcomingResponse struct {
	Today    string        `json:"today"`
	Days     int           `json:"days"`
	Upcoming []upcomingDTO `json:"upcoming"`
}

// GET /api/upcoming?days=30
func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	if s.upcoming == nil {
		writeError(w, http.StatusServiceUnavailable, "upcoming list unavailable")
		return
	}
	days := parseIntDefault(r.URL.Query().Get("days"), defaultUpcomingDays)
	if days <= 0 {
		days = defaultUpcomingDays
	}
	if days > maxUpcomingDays {
		days = maxUpcomingDays
	}

	today := s.now().In(s.loc)
	cacheKey := today.Format(time.DateOnly) + "/" + strconv.Itoa(days)

	s.upcomingMu.RLock()
	ce, hit := s.upcomingCache[cacheKey]
	s.upcomingMu.RUnlock()
	if hit && s.now().Sub(ce.updatedAt) < upcomingCacheTTL {
		writeJSON(w, http.StatusOK, ce.resp)
		return
	}

	candidates, err := s.upcoming.Upcoming(r.Context(), today, days)
	if err != nil {
		appLog.Error("api upcoming: lookup failed", err, "days", days)
		writeError(w, statusFor(err), "failed to load calendar")
		return
	}

	resp := upcomingResponse{
		Today:    today.Format(time.DateOnly),
		Days:     days,
		Upcoming: make([]upcomingDTO, 0, len(candidates)),
	}
	for _, c := range candidates {
		resp.Upcoming = append(resp.Upcoming, upcomingDTO{
			EventID:   c.EventID,
			Summary:   c.Event.Summary,
			Date:      c.Target.Format(time.DateOnly),
			DaysLeft:  c.Offset,
			Lunar:     c.Lunar,
			LunarText: lunar.FormatKorean(c.Lunar),
		})
	}

	s.upcomingMu.Lock()
	s.upcomingCache = map[string]upcomingCacheEntry{cacheKey: {resp: resp, updatedAt: s.now()}}
	s.upcomingMu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// POST /api/check?date=2025-02-12
//
// Runs the daily check now (for date, default today) and delivers the result.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeError(w, http.StatusServiceUnavailable, "checker unavailable")
		return
	}

	today := s.now().In(s.loc)
	if v := r.URL.Query().Get("date"); v != "" {
		t, err := time.ParseInLocation(time.DateOnly, v, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		today = t
	}

	appLog.Info("api check request", "date", today.Format(time.DateOnly), "request_id", chimw.GetReqID(r.Context()))
	res, err := s.checker.Run(r.Context(), today)
	if err != nil {
		appLog.Error("api check failed", err, "date", today.Format(time.DateOnly))
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, notify.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, anniversary.ErrCalendarFetch):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
