package http

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/ecobalance/dashboard/pkg/slogx"
)

//go:embed templates/*.html
var templateFiles embed.FS

//go:embed assets
var assetFiles embed.FS

var pages = map[string]*template.Template{}

func init() {
	for _, name := range []string{"login.html", "register.html", "mfa_setup.html", "mfa_verify.html", "dashboard.html"} {
		pages[name] = template.Must(template.New("base.html").ParseFS(templateFiles, "templates/base.html", "templates/"+name))
	}
}

// pageData is the union of what the HTML pages render.
type pageData struct {
	Title    string
	Warning  string
	Username string

	// Registration result
	Secret    string
	QRDataURI template.URL

	// Dashboard
	RefreshMS   int64
	DisplayZone string
	APIPath     string
}

// render executes the page into a buffer first so a template failure can
// still produce a clean 500.
func render(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	tmpl, ok := pages[name]
	if !ok {
		http.Error(w, "page not found", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		slogx.FromContext(r.Context()).Error("failed to render page", "page", name, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func assetsHandler() http.Handler {
	sub, err := fs.Sub(assetFiles, "assets")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/dashboard/assets/", http.FileServerFS(sub))
}
