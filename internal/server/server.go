// Package server is the local review dashboard: recent content units,
// the publish queue with its safety banner, and imported analytics. It
// binds to localhost only; queue actions are plain form POSTs.
package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/prayloop/prayloop/internal/database"
	"github.com/prayloop/prayloop/internal/queue"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// Server is the HTTP server for the review dashboard.
type Server struct {
	db    *database.DB
	mgr   *queue.Manager
	pages map[string]*template.Template
	mux   *http.ServeMux
}

// queueRow joins a queue item with its display context.
type queueRow struct {
	Item     database.QueueItem
	VerseRef string
	Theme    string
}

// New creates a new Server.
func New(db *database.DB, mgr *queue.Manager) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"derefInt": func(n *int) int {
			if n == nil {
				return 0
			}
			return *n
		},
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of the base so {{define "content"}}
	// and {{define "title"}} don't collide.
	pageNames := []string{"index.html", "today.html", "unit.html", "queue.html", "stats.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, mgr: mgr, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/today", s.handleToday)
	s.mux.HandleFunc("/unit/", s.handleUnit)
	s.mux.HandleFunc("/queue", s.handleQueue)
	s.mux.HandleFunc("/queue/unpause", s.handleUnpause)
	s.mux.HandleFunc("/queue/", s.handleQueueAction)
	s.mux.HandleFunc("/stats", s.handleStats)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	units, err := s.db.ListUnits(nil, 25)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	stats, err := s.db.GetStats()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "index.html", map[string]any{
		"Units": units,
		"Stats": stats,
	})
}

// handleToday shows the most recent published prayer, falling back to
// the most recent composed one before the first publish has happened.
func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	var unit *database.ContentUnit
	for _, status := range []string{database.StatusPublished, database.StatusComposed} {
		st := status
		units, err := s.db.ListUnits(&st, 1)
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if len(units) > 0 {
			unit = &units[0]
			break
		}
	}

	data := map[string]any{}
	if unit != nil {
		theme, _ := s.db.GetTheme(unit.ThemeID)
		verse, _ := s.db.GetVerse(unit.VerseID)
		data["Unit"] = unit
		data["Theme"] = theme
		data["Verse"] = verse
	}
	s.render(w, "today.html", data)
}

func (s *Server) handleUnit(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/unit/"), 10, 64)
	if err != nil {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	unit, err := s.db.GetUnit(id)
	if err != nil || unit == nil {
		http.NotFound(w, r)
		return
	}
	theme, _ := s.db.GetTheme(unit.ThemeID)
	verse, _ := s.db.GetVerse(unit.VerseID)

	s.render(w, "unit.html", map[string]any{
		"Unit":  unit,
		"Theme": theme,
		"Verse": verse,
	})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	items, err := s.mgr.List()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	state, err := s.mgr.State()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	rows := make([]queueRow, 0, len(items))
	for _, item := range items {
		row := queueRow{Item: item}
		if theme, err := s.db.GetTheme(item.Unit.ThemeID); err == nil {
			row.Theme = theme.Name
		}
		if verse, err := s.db.GetVerse(item.Unit.VerseID); err == nil {
			row.VerseRef = verse.Reference
		}
		rows = append(rows, row)
	}

	s.render(w, "queue.html", map[string]any{
		"Rows":   rows,
		"State":  state,
		"Config": s.mgr.Config(),
	})
}

// handleQueueAction handles POST /queue/{id}/approve and /queue/{id}/retry.
func (s *Server) handleQueueAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/queue", http.StatusFound)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/queue/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 {
		http.Redirect(w, r, "/queue", http.StatusFound)
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		http.Redirect(w, r, "/queue", http.StatusFound)
		return
	}

	switch parts[1] {
	case "approve":
		if err := s.mgr.Approve(id); err != nil {
			log.Printf("Approve entry %d: %v", id, err)
		}
	case "retry":
		if err := s.mgr.RetryFailed(id); err != nil {
			log.Printf("Retry entry %d: %v", id, err)
		}
	}

	http.Redirect(w, r, "/queue", http.StatusFound)
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Redirect(w, r, "/queue", http.StatusFound)
		return
	}
	if err := s.mgr.Unpause(); err != nil {
		log.Printf("Unpause: %v", err)
	}
	http.Redirect(w, r, "/queue", http.StatusFound)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetStats()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	posts, err := s.db.GetPlatformPosts(50)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "stats.html", map[string]any{
		"Stats": stats,
		"Posts": posts,
	})
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on the given port.
func Serve(db *database.DB, mgr *queue.Manager, port int) error {
	srv, err := New(db, mgr)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Dashboard listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
