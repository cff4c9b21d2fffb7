package web

import (
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/carecam/internal/web/handlers"
	"github.com/kozaktomas/carecam/internal/web/middleware"
	"github.com/kozaktomas/carecam/internal/web/static"
)

func (s *Server) setupRoutes() {
	d := s.deps
	recognitionHandler := handlers.NewRecognitionHandler(d.Recognition, s.log)
	remindersHandler := handlers.NewRemindersHandler(d.Reminders, d.Engine, d.Now, s.log)
	peopleHandler := handlers.NewPeopleHandler(d.Profiles, d.People, d.Capturer, d.Pipeline, s.log)
	chatHandler := handlers.NewChatHandler(d.Assistant, d.Now, s.log)

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// Streams run without the request timeout
	s.router.Get("/video_feed", recognitionHandler.VideoFeed)
	s.router.Get("/events", d.Hub.ServeWS)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(apiTimeout))

		// Recognition
		r.Get("/status", recognitionHandler.Status)
		r.Get("/identity", recognitionHandler.DetectedName)

		// People & enrollment
		r.Post("/details", peopleHandler.GetDetails)
		r.Get("/people", peopleHandler.List)
		r.Post("/people", peopleHandler.AddPerson)
		r.Post("/people/upload", peopleHandler.Upload)
		r.Get("/people/{name}", peopleHandler.Get)
		r.Get("/people/{name}/visits", peopleHandler.Visits)
		r.Post("/capture", peopleHandler.Capture)

		// Reminders
		r.Get("/reminders", remindersHandler.List)
		r.Post("/reminders", remindersHandler.Create)
		r.Get("/reminders/today", remindersHandler.Today)
		r.Get("/reminders/tomorrow", remindersHandler.Tomorrow)
		r.Get("/reminders/upcoming", remindersHandler.Upcoming)
		r.Get("/reminders/{id}", remindersHandler.Get)
		r.Post("/reminders/{id}/complete", remindersHandler.Complete)
		r.Delete("/reminders/{id}", remindersHandler.Delete)

		// Chat
		r.Post("/chat", chatHandler.Chat)
		r.Get("/time", chatHandler.CheckTime)
	})

	// Serve the kiosk UI
	s.router.With(middleware.SecurityHeaders()).Get("/*", s.serveUI)
}

// contentTypes maps the asset extensions shipped in static/dist.
var contentTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "application/javascript; charset=utf-8",
	".png":  "image/png",
	".ico":  "image/x-icon",
}

// serveUI serves the embedded kiosk page and its assets. Unknown paths get
// index.html.
func (s *Server) serveUI(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		http.NotFound(w, r)
		return
	}

	fs := static.GetFileSystem()
	name := r.URL.Path
	if name == "/" {
		name = "/index.html"
	}

	f, err := fs.Open(name)
	if err == nil {
		defer f.Close()
		if stat, err := f.Stat(); err == nil && !stat.IsDir() {
			if ct, ok := contentTypes[path.Ext(name)]; ok {
				w.Header().Set("Content-Type", ct)
			}
			w.WriteHeader(http.StatusOK)
			io.Copy(w, f)
			return
		}
	}

	index, err := fs.Open("/index.html")
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer index.Close()
	w.Header().Set("Content-Type", contentTypes[".html"])
	w.WriteHeader(http.StatusOK)
	io.Copy(w, index)
}
