package server

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"

	"github.com/TobiSchelling/ReviewLens/internal/artifact"
	"github.com/TobiSchelling/ReviewLens/internal/database"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

// Server is the HTTP server for browsing analyses and the current model.
type Server struct {
	db       *database.DB
	modelDir string
	logger   *zap.Logger
	pages    map[string]*template.Template
	mux      *http.ServeMux
}

// New creates a new Server.
func New(db *database.DB, modelDir string, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"percent": func(v float64) string {
			return fmt.Sprintf("%.1f%%", v*100)
		},
		"score": func(v float64) string {
			return fmt.Sprintf("%.4f", v)
		},
		"depth": func(d int) string {
			if d == 0 {
				return "unlimited"
			}
			return fmt.Sprint(d)
		},
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of the base so that {{define "content"}}
	// and {{define "title"}} do not collide.
	pageNames := []string{"index.html", "analysis.html", "model.html"}
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

	s := &Server{db: db, modelDir: modelDir, logger: logger, pages: pages, mux: http.NewServeMux()}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	// Static files
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	// Routes
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/analysis/", s.handleAnalysis)
	s.mux.HandleFunc("/api/analyses/", s.handleAnalysisJSON)
	s.mux.HandleFunc("/model", s.handleModel)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	analyses, err := s.db.GetAllAnalyses()
	if err != nil {
		s.logger.Error("listing analyses", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.render(w, "index.html", map[string]any{
		"Analyses": analyses,
	})
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/analysis/")
	if id == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	analysis, err := s.db.GetAnalysis(id)
	if err != nil {
		s.logger.Error("reading analysis", zap.String("id", id), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if analysis == nil {
		http.NotFound(w, r)
		return
	}

	s.render(w, "analysis.html", map[string]any{
		"Analysis": analysis,
	})
}

// handleAnalysisJSON serves the stored analysis document unchanged.
func (s *Server) handleAnalysisJSON(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/analyses/")
	analysis, err := s.db.GetAnalysis(id)
	if err != nil {
		s.logger.Error("reading analysis", zap.String("id", id), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if analysis == nil {
		http.NotFound(w, r)
		return
	}

	data, err := os.ReadFile(analysis.ResultPath)
	if errors.Is(err, fs.ErrNotExist) {
		http.Error(w, "analysis document no longer exists", http.StatusGone)
		return
	}
	if err != nil {
		s.logger.Error("reading analysis document", zap.String("path", analysis.ResultPath), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{"ModelDir": s.modelDir}
	meta, err := artifact.LoadMetadata(s.modelDir)
	if err != nil {
		data["Error"] = err.Error()
	} else {
		data["Model"] = meta
	}
	if run, err := s.db.GetLatestTrainingRun(); err == nil && run != nil {
		data["Run"] = run
	}
	s.render(w, "model.html", data)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.logger.Error("template not found", zap.String("template", name))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		s.logger.Error("rendering template", zap.String("template", name), zap.Error(err))
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
func Serve(db *database.DB, modelDir string, port int, logger *zap.Logger) error {
	srv, err := New(db, modelDir, logger)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	srv.logger.Info("server listening", zap.String("url", "http://"+addr))
	return http.ListenAndServe(addr, srv.Handler())
}
