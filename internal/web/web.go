package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"

	"studycal/internal/bucket"
	"studycal/internal/config"
	"studycal/internal/highlight"
	appLog "studycal/internal/log"
	"studycal/internal/model"
	"studycal/internal/normalize"
	"studycal/internal/schedule"
	"studycal/internal/store"
	"studycal/internal/temporal"
)

// Expansion window for recurring schedule series, relative to today.
const (
	seriesBackfillDays = 60
	seriesHorizonDays  = 180
)

// Server exposes the aggregated dashboard and its JSON APIs.
type Server struct {
	cfg *config.Config
	loc *time.Location
	mux *http.ServeMux

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time

	// In-memory cache of the normalized event set, so schedule load and
	// series expansion do not repeat on every HTTP request.
	eventsMu    sync.RWMutex
	eventsCache *eventsCache
}

type eventsCache struct {
	events    []model.Event
	updatedAt time.Time
}

const eventsCacheTTL = 30 * time.Second

//go:embed templates
var templateFS embed.FS

var dashboardTemplate = template.Must(template.New("dashboard.html").
	Funcs(template.FuncMap{"lower": func(v any) string { return strings.ToLower(fmt.Sprint(v)) }}).
	ParseFS(templateFS, "templates/dashboard.html"))

// NewServer constructs a Server. The display timezone is resolved once;
// every request derives its clock from it.
func NewServer(cfg *config.Config) (*Server, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	s := &Server{
		cfg: cfg,
		loc: loc,
		mux: http.NewServeMux(),
		now: time.Now,
	}
	s.registerRoutes()
	return s, nil
}

// Handler returns the server's http.Handler, wrapped with basic auth
// when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Serve runs the HTTP server until ctx is canceled, then shuts down
// gracefully.
func Serve(ctx context.Context, cfg *config.Config) error {
	s, err := NewServer(cfg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password counts as disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health.
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
			w.Header().Set("WWW-Authenticate", `Basic realm="studycal", charset="UTF-8"`)
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

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/tasks", s.handleTasks)
	s.mux.HandleFunc("/api/schedule", s.handleSchedule)
	s.mux.HandleFunc("/api/upcoming", s.handleUpcoming)
	s.mux.HandleFunc("/api/calendar", s.handleCalendar)
	s.mux.HandleFunc("/api/courses", s.handleCourses)
	s.mux.HandleFunc("/export/schedule.ics", s.handleExportICS)
	s.mux.HandleFunc("/", s.handleDashboard)
}

// clock freezes "now" for one request so every view within it agrees on
// what today means.
func (s *Server) clock() temporal.Clock {
	return temporal.FixedClock(s.now().In(s.loc), s.loc)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// events returns the normalized event set, rebuilding it when the cache
// has expired.
func (s *Server) events(clock temporal.Clock) []model.Event {
	now := s.now()

	s.eventsMu.RLock()
	ec := s.eventsCache
	s.eventsMu.RUnlock()
	if ec != nil && now.Sub(ec.updatedAt) < eventsCacheTTL {
		return ec.events
	}

	entries := schedule.Load(s.cfg.ScheduleFile)
	today := clock.Today()
	entries = schedule.ExpandSeries(entries, clock,
		today.AddDate(0, 0, -seriesBackfillDays),
		today.AddDate(0, 0, seriesHorizonDays))

	course := model.CourseInfo{
		Name:  s.cfg.Course.Name,
		Short: s.cfg.Course.Short,
		Slug:  normalize.Slugify(s.cfg.Course.Name),
	}
	events := normalize.Events(entries, course)
	bucket.SortEvents(events)

	s.eventsMu.Lock()
	s.eventsCache = &eventsCache{events: events, updatedAt: now}
	s.eventsMu.Unlock()

	return events
}

func (s *Server) loadGroupedTasks(clock temporal.Clock) (map[string][]bucket.TaskView, error) {
	tasks, _, err := store.New(s.cfg.DataDir).Load()
	if err != nil {
		return nil, err
	}
	return bucket.GroupTasks(tasks, clock)
}

// loadCourses reads the simplified course list side file. Missing or
// malformed content degrades to an empty list; the dashboard must render
// without it.
func (s *Server) loadCourses() []model.Course {
	data, err := os.ReadFile(filepath.Join(s.cfg.DataDir, "canvas_courses.json"))
	if err != nil {
		return nil
	}
	var courses []model.Course
	if err := json.Unmarshal(data, &courses); err != nil {
		return nil
	}
	return courses
}

// tasksResponse is the grouped task view model exposed on /api/tasks.
type tasksResponse struct {
	Today   string                       `json:"today"`
	Order   []string                     `json:"order"`
	Grouped map[string][]bucket.TaskView `json:"grouped"`
}

func (s *Server) handleTasks(w http.ResponseWriter, _ *http.Request) {
	clock := s.clock()
	grouped, err := s.loadGroupedTasks(clock)
	if err != nil {
		appLog.Error("api tasks: load failed", err)
		writeError(w, http.StatusInternalServerError, "failed to load tasks")
		return
	}
	writeJSON(w, http.StatusOK, tasksResponse{
		Today:   clock.Today().Format("2006-01-02"),
		Order:   bucket.Buckets,
		Grouped: grouped,
	})
}

// eventView is an Event plus precomputed display labels.
type eventView struct {
	model.Event
	DateLabel string `json:"date_label"`
	TimeLabel string `json:"time_label"`
}

func viewOf(ev model.Event, loc *time.Location) eventView {
	v := eventView{Event: ev}
	if !ev.HasDate {
		v.DateLabel = "Date TBA"
		v.TimeLabel = "Date TBA"
		return v
	}
	if d, ok := temporal.ParseDate(ev.Date); ok {
		v.DateLabel = fmt.Sprintf("%d %s", d.Day(), d.In(loc).Format("Jan"))
	}
	if ev.StartTime == "" {
		v.TimeLabel = "Time TBA"
	} else {
		v.TimeLabel = ev.TimeRange()
	}
	return v
}

func (s *Server) eventViews(events []model.Event) []eventView {
	views := make([]eventView, 0, len(events))
	for _, ev := range events {
		views = append(views, viewOf(ev, s.loc))
	}
	return views
}

// scheduleResponse is the schedule view model: either the rolling week
// window or the full timeline.
type scheduleResponse struct {
	View      string      `json:"view"`
	WeekStart string      `json:"week_start,omitempty"`
	WeekEnd   string      `json:"week_end,omitempty"`
	Events    []eventView `json:"events"`
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	clock := s.clock()
	today := clock.Today()
	events := s.events(clock)

	view := r.URL.Query().Get("view")
	if view == "" {
		view = "week"
	}

	switch view {
	case "week":
		writeJSON(w, http.StatusOK, scheduleResponse{
			View:      "week",
			WeekStart: today.Format("2006-01-02"),
			WeekEnd:   today.AddDate(0, 0, 7).Format("2006-01-02"),
			Events:    s.eventViews(bucket.WeekEvents(events, today)),
		})
	case "full":
		sorted := make([]model.Event, len(events))
		copy(sorted, events)
		bucket.SortEvents(sorted)
		writeJSON(w, http.StatusOK, scheduleResponse{
			View:   "full",
			Events: s.eventViews(sorted),
		})
	default:
		writeError(w, http.StatusBadRequest, "view must be week or full")
	}
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	clock := s.clock()
	limit := parseIntDefault(r.URL.Query().Get("limit"), s.cfg.HighlightLimit)
	if limit <= 0 {
		limit = s.cfg.HighlightLimit
	}

	future := bucket.FutureEvents(s.events(clock), clock.Today())
	picked := highlight.Select(future, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"limit":  limit,
		"events": s.eventViews(picked),
	})
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	clock := s.clock()
	today := clock.Today()

	year := parseIntDefault(r.URL.Query().Get("year"), today.Year())
	month := parseIntDefault(r.URL.Query().Get("month"), int(today.Month()))
	if month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "month must be 1..12")
		return
	}

	grid := bucket.MonthGrid(year, time.Month(month), s.events(clock), today)
	writeJSON(w, http.StatusOK, grid)
}

func (s *Server) handleCourses(w http.ResponseWriter, _ *http.Request) {
	courses := s.loadCourses()
	if courses == nil {
		courses = []model.Course{}
	}
	writeJSON(w, http.StatusOK, courses)
}

// handleExportICS serves the normalized schedule as an iCalendar feed.
// Events without a start time become all-day entries; dateless events are
// left out (an ICS VEVENT needs a DTSTART).
func (s *Server) handleExportICS(w http.ResponseWriter, _ *http.Request) {
	clock := s.clock()
	events := s.events(clock)

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//studycal//schedule//EN")

	stamp := clock.Now
	for _, ev := range events {
		if !ev.HasDate {
			continue
		}
		d, ok := temporal.ParseDate(ev.Date)
		if !ok {
			continue
		}

		vevent := cal.AddEvent(ev.ID + "@studycal")
		vevent.SetDtStampTime(stamp)
		vevent.SetSummary(ev.Title)
		if ev.Location != "" {
			vevent.SetLocation(ev.Location)
		}
		desc := ev.CategoryLabel()
		if ev.Teacher != "" {
			desc += " - " + ev.Teacher
		}
		vevent.SetDescription(desc)

		if ev.StartTime == "" {
			day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, s.loc)
			vevent.SetAllDayStartAt(day)
			vevent.SetAllDayEndAt(day.AddDate(0, 0, 1))
			continue
		}

		start, err := temporal.CombineDateTime(ev.Date, ev.StartTime, s.loc)
		if err != nil {
			continue
		}
		end := start.Add(time.Hour)
		if ev.EndTime != "" {
			if e, eerr := temporal.CombineDateTime(ev.Date, ev.EndTime, s.loc); eerr == nil && e.After(start) {
				end = e
			}
		}
		vevent.SetStartAt(start)
		vevent.SetEndAt(end)
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="schedule.ics"`)
	_, _ = w.Write([]byte(cal.Serialize()))
}

// section pairs a bucket label with its dashboard presentation.
type section struct {
	Key   string
	Title string
	Color string
}

var sections = []section{
	{bucket.BucketToday, "Today", "#ffd5cc"},
	{bucket.BucketThisWeek, "This Week", "#ffe8b3"},
	{bucket.BucketLater, "Later", "#d7e8ff"},
}

type dashboardData struct {
	Today     string
	Sections  []section
	Grouped   map[string][]bucket.TaskView
	Courses   []model.Course
	Upcoming  []eventView
	Week      []eventView
	WeekStart string
	WeekEnd   string
	Month     bucket.MonthView
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	clock := s.clock()
	today := clock.Today()

	grouped, err := s.loadGroupedTasks(clock)
	if err != nil {
		appLog.Error("dashboard: load tasks failed", err)
		http.Error(w, "failed to load tasks", http.StatusInternalServerError)
		return
	}

	events := s.events(clock)
	future := bucket.FutureEvents(events, today)

	data := dashboardData{
		Today:     today.Format("Monday, 2 January 2006"),
		Sections:  sections,
		Grouped:   grouped,
		Courses:   s.loadCourses(),
		Upcoming:  s.eventViews(highlight.Select(future, s.cfg.HighlightLimit)),
		Week:      s.eventViews(bucket.WeekEvents(events, today)),
		WeekStart: today.Format("2 Jan"),
		WeekEnd:   today.AddDate(0, 0, 7).Format("2 Jan 2006"),
		Month:     bucket.MonthGrid(today.Year(), today.Month(), events, today),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTemplate.Execute(w, data); err != nil {
		appLog.Error("dashboard: template render failed", err)
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
