package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/inkmill/inkmill/internal/budget"
	"github.com/inkmill/inkmill/internal/database"
)

//go:embed templates/*.html
var templateFS embed.FS

var md = goldmark.New()

// Server is the read-only HTTP view over artifacts, budget, and run history.
type Server struct {
	db       *database.DB
	governor *budget.Governor
	pages    map[string]*template.Template
	mux      *http.ServeMux
}

// New creates a new Server.
func New(db *database.DB, governor *budget.Governor) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"money": func(v float64) string {
			return fmt.Sprintf("$%.4f", v)
		},
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// For each page template, clone the base and parse the page into the clone.
	// This gives each page its own {{define "content"}} and {{define "title"}}.
	pageNames := []string{"index.html", "artifact.html", "budget.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, governor: governor, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/artifact/", s.handleArtifact)
	s.mux.HandleFunc("/budget", s.handleBudget)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	artifacts, err := s.db.RecentArtifacts(50)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	stats, _ := s.db.GetStats()
	schedules, _ := s.db.AllSchedules()

	s.render(w, "index.html", map[string]any{
		"Artifacts": artifacts,
		"Stats":     stats,
		"Schedules": schedules,
	})
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	artifactID := strings.TrimPrefix(r.URL.Path, "/artifact/")
	if artifactID == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	artifact, err := s.db.GetArtifact(artifactID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if artifact == nil {
		http.NotFound(w, r)
		return
	}

	s.render(w, "artifact.html", map[string]any{
		"Artifact": artifact,
	})
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	usage, err := s.governor.Usage()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	events, _ := s.db.RecentCostEvents(50)
	reports, _ := s.db.RecentRunReports(20)

	s.render(w, "budget.html", map[string]any{
		"Usage":   usage,
		"Events":  events,
		"Reports": reports,
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
func Serve(db *database.DB, governor *budget.Governor, port int) error {
	srv, err := New(db, governor)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
