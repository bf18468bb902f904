package server

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
)

//go:embed templates/*.html
var templateFS embed.FS

// pages is parsed once at startup; template errors are programming errors
// and fail fast in init.
var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// render executes the named page template. Render errors after the header
// has been written can only be logged.
func render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		slog.Error("template render failed", "template", name, "error", err)
	}
}
