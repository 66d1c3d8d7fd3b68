package server

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/brojonat/daiwatch/service/transfers"
)

//go:embed templates/*.html
var templatesFS embed.FS

// TemplateRenderer holds parsed HTML templates
type TemplateRenderer struct {
	templates *template.Template
	logger    *slog.Logger
}

// NewTemplateRenderer creates a new template renderer from embedded files
func NewTemplateRenderer(logger *slog.Logger) (*TemplateRenderer, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &TemplateRenderer{
		templates: tmpl,
		logger:    logger,
	}, nil
}

// Render renders a template with the given data
func (tr *TemplateRenderer) Render(w http.ResponseWriter, name string, data interface{}) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return tr.templates.ExecuteTemplate(w, name, data)
}

// dashboardPage is the data rendered into index.html.
type dashboardPage struct {
	// Loading is true while the list is empty, whether or not the backfill
	// has finished.
	Loading   bool
	Contract  string
	MaxSize   int
	Cards     []dashboardCard
	Transfers []transferJSON
}

// dashboardCard is one numbered card; numbering starts at 1.
type dashboardCard struct {
	Number   int
	Transfer transferJSON
}

// handleDashboard serves the transfer dashboard. While the list is empty the
// page only shows a loading message.
// GET /
func handleDashboard(renderer *TemplateRenderer, feed *transfers.Feed, contract, explorerTxURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}

		records := feed.Snapshot()
		page := dashboardPage{
			Loading:   !feed.Loaded() || len(records) == 0,
			Contract:  contract,
			MaxSize:   feed.MaxSize(),
			Cards:     make([]dashboardCard, 0, len(records)),
			Transfers: make([]transferJSON, 0, len(records)),
		}
		for i, rec := range records {
			t := toTransferJSON(rec, explorerTxURL)
			page.Transfers = append(page.Transfers, t)
			page.Cards = append(page.Cards, dashboardCard{Number: i + 1, Transfer: t})
		}

		if err := renderer.Render(w, "index.html", page); err != nil {
			renderer.logger.Error("failed to render template", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	}
}
