package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mhcal/internal/calendar"
	"mhcal/internal/category"
	"mhcal/internal/config"
	"mhcal/internal/ics"
	appLog "mhcal/internal/log"
	"mhcal/internal/metrics"
	"mhcal/internal/model"
	"mhcal/internal/schedule"
	"mhcal/internal/store"
)

const (
	defaultDays = 7
	maxDays     = 366
	// default window of the occurrence endpoints
	defaultOccurrenceDays = 30
)

// ChangeLog reads the persisted change log. *store.Dir implements it.
type ChangeLog interface {
	ReadLog() ([]store.Change, error)
}

// Server exposes the schedule store over HTTP.
type Server struct {
	cfg     *config.Config
	store   *store.Store
	metrics *metrics.Metrics
	log     ChangeLog
	loc     *time.Location
	now     func() time.Time
	mux     *http.ServeMux
}

type Option func(*Server)

// WithMetrics serves /metrics and records per-request metrics.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Server) { s.metrics = m } }

// WithChangeLog makes /api/log read the persisted log instead of the
// changes made since start.
func WithChangeLog(l ChangeLog) Option { return func(s *Server) { s.log = l } }

func WithClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, st *store.Store, opts ...Option) *Server {
	s := &Server{
		cfg:   cfg,
		store: st,
		now:   time.Now,
		mux:   http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.loc = resolveLocationOrLocal(cfg)
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = s.basicAuthMiddleware(h)
	}
	if s.metrics != nil {
		h = s.metricsMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password disables auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="mhcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
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

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware labels requests by route pattern, so uids never become
// label values.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := r.Pattern
		if i := strings.IndexByte(route, ' '); i >= 0 {
			route = route[i+1:]
		}
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveHTTPRequest(r.Method, route, rec.status, time.Since(start))
	})
}

// Serve listens on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/entries/{uid}", s.handleEntry)
	s.mux.HandleFunc("DELETE /api/entries/{uid}", s.handleDeleteEntry)
	s.mux.HandleFunc("GET /api/entries/{uid}/occurrences", s.handleOccurrences)
	s.mux.HandleFunc("GET /api/occurrences", s.handleAllOccurrences)
	s.mux.HandleFunc("GET /api/log", s.handleLog)
	s.mux.HandleFunc("GET /api/calendar.ics", s.handleCalendar)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// dayDTO is one day of /api/events.
type dayDTO struct {
	Date        string             `json:"date"`
	Holiday     bool               `json:"holiday"`
	Occurrences []model.Occurrence `json:"occurrences"`
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	From            string   `json:"from"`
	To              string   `json:"to"`
	DisplayTimeZone string   `json:"display_timezone"`
	Category        string   `json:"category,omitempty"`
	Days            []dayDTO `json:"days"`
}

// handleEvents returns the occurrences of each day in a window.
//
// GET /api/events?from=20240501&days=7&category=Work
//   - from:     first day, YYYYMMDD (default today)
//   - days:     number of days (default 7, at most 366)
//   - category: category expression, "!" inverts
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := s.dateParam(q.Get("from"), s.today())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	days := parseIntDefault(q.Get("days"), defaultDays)
	if days <= 0 {
		days = defaultDays
	}
	if days > maxDays {
		days = maxDays
	}
	to := from.AddDays(days - 1)
	expr := q.Get("category")
	pred := category.Parse(expr)

	appLog.Debug("api events request",
		"from", from,
		"to", to,
		"category", expr,
	)

	resp := eventsResponse{
		From:            from.String(),
		To:              to.String(),
		DisplayTimeZone: s.loc.String(),
		Category:        expr,
		Days:            make([]dayDTO, 0, days),
	}
	for _, day := range s.store.SearchRange(from, to, pred) {
		occ := make([]model.Occurrence, 0, len(day.Entries))
		for _, e := range day.Entries {
			occ = append(occ, model.NewOccurrence(e, day.Date, s.loc))
		}
		resp.Days = append(resp.Days, dayDTO{
			Date:        day.Date.String(),
			Holiday:     s.store.IsHoliday(day.Date),
			Occurrences: occ,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// entryDTO is the JSON view of a stored entry. Record is the entry in its
// on-disk form.
type entryDTO struct {
	UID        string   `json:"uid"`
	Subject    string   `json:"subject"`
	Location   string   `json:"location,omitempty"`
	Body       string   `json:"body,omitempty"`
	Dates      string   `json:"dates,omitempty"`
	Exceptions string   `json:"exceptions,omitempty"`
	Time       string   `json:"time,omitempty"`
	Cond       string   `json:"cond,omitempty"`
	Duration   string   `json:"duration,omitempty"`
	Categories []string `json:"categories"`
	Priority   *int     `json:"priority,omitempty"`
	Alarm      string   `json:"alarm,omitempty"`
	First      string   `json:"first_occurrence,omitempty"`
	Record     string   `json:"record"`
}

func newEntryDTO(e *schedule.Entry) entryDTO {
	dto := entryDTO{
		UID:        e.UID,
		Subject:    e.Subject,
		Location:   e.Location,
		Body:       e.Body,
		Dates:      e.Dates.String(),
		Exceptions: e.Exceptions.String(),
		Time:       e.Time.String(),
		Cond:       e.Cond.String(),
		Duration:   e.Duration.String(),
		Categories: e.Categories,
		Priority:   e.Priority,
		Record:     string(e.Marshal()),
	}
	if dto.Categories == nil {
		dto.Categories = []string{}
	}
	if e.Alarm.IsSet() {
		dto.Alarm = e.Alarm.String()
	}
	if d, ok := e.FirstOccurrence(); ok {
		dto.First = d.String()
	}
	return dto
}

func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request) {
	e, ok := s.findEntry(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newEntryDTO(e))
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	if err := s.store.Delete(uid); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "entry not found")
			return
		}
		appLog.Error("api delete failed", err, "uid", uid)
		writeError(w, http.StatusInternalServerError, "failed to delete entry")
		return
	}
	appLog.Info("entry deleted via api", "uid", uid)
	w.WriteHeader(http.StatusNoContent)
}

// occurrencesResponse is the JSON response shape for
// /api/entries/{uid}/occurrences.
type occurrencesResponse struct {
	UID         string             `json:"uid"`
	From        string             `json:"from"`
	To          string             `json:"to"`
	Occurrences []model.Occurrence `json:"occurrences"`
	Truncated   bool               `json:"truncated,omitempty"`
}

// handleOccurrences expands one entry through its RRULE equivalent.
//
// GET /api/entries/{uid}/occurrences?from=20240101&to=20241231
func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	e, ok := s.findEntry(w, r)
	if !ok {
		return
	}
	from, to, err := s.windowParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	occ, truncated, err := ics.Occurrences(e, ics.ExpandConfig{Location: s.loc, From: from, To: to})
	if err != nil {
		appLog.Error("api occurrences: expand failed", err, "uid", e.UID)
		writeError(w, http.StatusInternalServerError, "failed to expand entry")
		return
	}
	if occ == nil {
		occ = []model.Occurrence{}
	}
	writeJSON(w, http.StatusOK, occurrencesResponse{
		UID:         e.UID,
		From:        from.String(),
		To:          to.String(),
		Occurrences: occ,
		Truncated:   truncated,
	})
}

// expandResponse is the JSON response shape for /api/occurrences.
type expandResponse struct {
	From            string             `json:"from"`
	To              string             `json:"to"`
	DisplayTimeZone string             `json:"display_timezone"`
	Occurrences     []model.Occurrence `json:"occurrences"`
	TruncatedUIDs   []string           `json:"truncated_uids,omitempty"`
}

// handleAllOccurrences expands every entry matching ?category= through
// its RRULE equivalent into one sorted list.
//
// GET /api/occurrences?from=20240101&to=20240131&category=Work
func (s *Server) handleAllOccurrences(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.windowParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pred := category.Parse(r.URL.Query().Get("category"))

	var entries []*schedule.Entry
	for _, e := range s.store.Entries() {
		if pred.Match(e.Categories) {
			entries = append(entries, e)
		}
	}
	res, err := ics.Expand(entries, ics.ExpandConfig{Location: s.loc, From: from, To: to})
	if err != nil {
		appLog.Error("api occurrences: expand failed", err)
		writeError(w, http.StatusInternalServerError, "failed to expand entries")
		return
	}
	if res.Occurrences == nil {
		res.Occurrences = []model.Occurrence{}
	}
	writeJSON(w, http.StatusOK, expandResponse{
		From:            from.String(),
		To:              to.String(),
		DisplayTimeZone: s.loc.String(),
		Occurrences:     res.Occurrences,
		TruncatedUIDs:   res.Truncated,
	})
}

func (s *Server) handleLog(w http.ResponseWriter, _ *http.Request) {
	var changes []store.Change
	if s.log != nil {
		var err error
		changes, err = s.log.ReadLog()
		if err != nil {
			appLog.Error("api log: read failed", err)
			writeError(w, http.StatusInternalServerError, "failed to read change log")
			return
		}
	} else {
		changes = s.store.Changes()
	}
	if changes == nil {
		changes = []store.Change{}
	}
	writeJSON(w, http.StatusOK, changes)
}

// handleCalendar serves the whole store, or the entries matching
// ?category=, as an iCalendar feed.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	pred := category.Parse(r.URL.Query().Get("category"))
	entries := s.store.Entries()
	kept := entries[:0]
	for _, e := range entries {
		if pred.Match(e.Categories) {
			kept = append(kept, e)
		}
	}
	cal := ics.Export(kept, s.loc, s.now())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="mhcal.ics"`)
	w.WriteHeader(http.StatusOK)
	if err := cal.SerializeTo(w); err != nil {
		appLog.Error("failed to write calendar response", err)
	}
}

func (s *Server) findEntry(w http.ResponseWriter, r *http.Request) (*schedule.Entry, bool) {
	uid := r.PathValue("uid")
	e, err := s.store.FindByUID(uid)
	if err != nil {
		writeError(w, http.StatusNotFound, "entry not found")
		return nil, false
	}
	return e, true
}

func (s *Server) today() calendar.Date {
	return calendar.DateOf(s.now().In(s.loc))
}

// windowParams reads ?from= (default today) and ?to= (default from plus
// defaultOccurrenceDays). Windows longer than maxDays are cut to maxDays.
func (s *Server) windowParams(r *http.Request) (calendar.Date, calendar.Date, error) {
	q := r.URL.Query()
	from, err := s.dateParam(q.Get("from"), s.today())
	if err != nil {
		return from, from, err
	}
	to, err := s.dateParam(q.Get("to"), from.AddDays(defaultOccurrenceDays))
	if err != nil {
		return from, from, err
	}
	if to.Before(from) {
		return from, to, errors.New("to is before from")
	}
	if last := from.AddDays(maxDays - 1); to.After(last) {
		to = last
	}
	return from, to, nil
}

func (s *Server) dateParam(v string, def calendar.Date) (calendar.Date, error) {
	if v == "" {
		return def, nil
	}
	d, err := calendar.ParseDate(strings.ReplaceAll(v, "-", ""))
	if err != nil {
		return calendar.Date{}, errors.New("bad date " + strconv.Quote(v) + ", want YYYYMMDD")
	}
	return d, nil
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

func resolveLocationOrLocal(cfg *config.Config) *time.Location {
	if cfg == nil {
		return time.Local
	}
	loc, err := cfg.Location()
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", cfg.Timezone)
		return time.Local
	}
	return loc
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
