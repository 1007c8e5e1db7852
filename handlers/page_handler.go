package handlers

import (
	"html/template"
	"net/http"

	"go.uber.org/zap"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!doctype html>
<html lang="tr">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body data-path="{{.Path}}">
<h1>{{.Title}}</h1>
{{if .Callback}}<form method="post" action="/api/auth/login" data-callback="{{.Callback}}"></form>{{end}}
</body>
</html>
`))

type pageData struct {
	Title    string
	Path     string
	Callback string
}

// PageHandler serves placeholder shells for the site's server-rendered pages.
// Content rendering belongs to the frontend; the shell marks where the route
// gate let a request through.
type PageHandler struct {
	logger *zap.Logger
}

// NewPageHandler creates a new PageHandler
func NewPageHandler(logger *zap.Logger) *PageHandler {
	return &PageHandler{logger: logger}
}

// Page returns a handler that renders the shell with the given title
func (h *PageHandler) Page(title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.render(w, pageData{Title: title, Path: r.URL.Path})
	}
}

// HandleLogin renders the login page, carrying callbackUrl through to the form
func (h *PageHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	callback := r.URL.Query().Get("callbackUrl")
	if callback == "" {
		callback = "/"
	}
	h.render(w, pageData{Title: "Giriş", Path: r.URL.Path, Callback: callback})
}

func (h *PageHandler) render(w http.ResponseWriter, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := pageTemplate.Execute(w, data); err != nil {
		h.logger.Error("failed to render page", zap.String("path", data.Path), zap.Error(err))
	}
}
