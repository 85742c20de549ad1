package handler

import (
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/linkbio/internal/apperror"
	"github.com/sakif/linkbio/internal/service"
)

//go:embed templates/*.html
var templateFS embed.FS

// PageHandler renders the public page as HTML at /{handle}, for visitors
// and for crawlers that do not run the SPA.
//
// TEMPLATE COMPOSITION:
// base.html defines the document and calls {{template "content" .}}; each
// page template fills in "content". Each page gets its own clone of base
// so the two "content" definitions never collide.
type PageHandler struct {
	public   *service.PublicService
	page     *template.Template
	notFound *template.Template
	logger   *slog.Logger
}

// safeURL lets through the schemes the services accept for links and
// avatars. html/template would otherwise rewrite tel: and data: URLs to
// "#ZgotmplZ".
func safeURL(u string) template.URL {
	lower := strings.ToLower(u)
	for _, prefix := range []string{"https://", "http://", "mailto:", "tel:", "data:image/"} {
		if strings.HasPrefix(lower, prefix) {
			return template.URL(u)
		}
	}
	return template.URL("#")
}

// NewPageHandler parses the embedded templates once at startup.
func NewPageHandler(public *service.PublicService, logger *slog.Logger) (*PageHandler, error) {
	base, err := template.New("base").Funcs(template.FuncMap{"safeURL": safeURL}).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, err
	}
	page, err := template.Must(base.Clone()).ParseFS(templateFS, "templates/page.html")
	if err != nil {
		return nil, err
	}
	notFound, err := template.Must(base.Clone()).ParseFS(templateFS, "templates/notfound.html")
	if err != nil {
		return nil, err
	}
	return &PageHandler{public: public, page: page, notFound: notFound, logger: logger}, nil
}

type pageData struct {
	Title       string
	Description string
	Theme       string
	Font        string
	Background  string
	APIBase     string
	Handle      string
	Profile     *service.PublicProfile
}

// HandlePage renders a profile page.
//
// HTTP: GET /{handle}
func (h *PageHandler) HandlePage(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")

	profile, err := h.public.Resolve(r.Context(), handle)
	if errors.Is(err, apperror.ErrNotFound) {
		h.render(w, h.notFound, http.StatusNotFound, pageData{
			Title:  "@" + handle + " | linkbio",
			Theme:  "default",
			Font:   "system-ui",
			Handle: handle,
		})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	data := pageData{
		Title:       profile.Title,
		Description: profile.Description,
		Theme:       profile.Theme,
		Font:        profile.Font,
		Background:  profile.Background,
		APIBase:     "/api/public",
		Handle:      profile.Handle,
		Profile:     profile,
	}
	if profile.SEOTitle != "" {
		data.Title = profile.SEOTitle
	}
	if profile.SEODescription != "" {
		data.Description = profile.SEODescription
	}
	if data.Font == "" {
		data.Font = "system-ui"
	}
	if data.Background == "" {
		data.Background = "#fff"
	}
	h.render(w, h.page, http.StatusOK, data)
}

func (h *PageHandler) render(w http.ResponseWriter, t *template.Template, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, "base", data); err != nil {
		// Status is already sent; log and leave the partial page.
		h.logger.Error("failed to render template", slog.String("error", err.Error()))
	}
}
