// Package web provides the embedded web UI for browsing sheets and rolling
// their properties and actions.
package web

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lemonberrylabs/sheetroll/pkg/roll"
	"github.com/lemonberrylabs/sheetroll/pkg/runtime"
	"github.com/lemonberrylabs/sheetroll/pkg/sheet"
	"github.com/lemonberrylabs/sheetroll/pkg/stdlib"
	"github.com/lemonberrylabs/sheetroll/pkg/store"
)

//go:embed templates/*.html
var templateFS embed.FS

// Handler serves the web UI pages.
type Handler struct {
	store   store.Store
	engine  *runtime.Engine
	funcMap template.FuncMap
}

// pageData wraps all page-specific data with common fields.
type pageData struct {
	NavActive string
	Title     string
	Data      interface{}
}

// New creates a new web UI handler.
func New(s store.Store) *Handler {
	return &Handler{
		store:  s,
		engine: runtime.NewEngine(stdlib.NewRegistry()),
		funcMap: template.FuncMap{
			"timeAgo":    timeAgo,
			"formatTime": formatTime,
			"usageClass": usageClass,
			"usageIcon":  usageIcon,
			"truncate":   truncate,
			"join":       strings.Join,
		},
	}
}

func (h *Handler) render(c *fiber.Ctx, page, navActive, title string, data interface{}) error {
	// Parse templates fresh each time for the page-specific template
	// This avoids the Go template issue where define blocks conflict across pages
	tmpl, err := template.New("").Funcs(h.funcMap).ParseFS(templateFS, "templates/layout.html", "templates/"+page)
	if err != nil {
		return c.Status(500).SendString(fmt.Sprintf("template error: %v", err))
	}

	pd := pageData{
		NavActive: navActive,
		Title:     title,
		Data:      data,
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, page, pd); err != nil {
		return c.Status(500).SendString(fmt.Sprintf("template error: %v", err))
	}

	c.Set("Content-Type", "text/html; charset=utf-8")
	return c.Send(buf.Bytes())
}

// Register adds web UI routes to the Fiber app.
func (h *Handler) Register(app *fiber.App) {
	app.Get("/ui", h.sheetList)
	app.Get("/ui/sheets/:id", h.sheetDetail)
	app.Get("/ui/sheets/:id/roll", h.rollPage)

	// Redirect root to UI
	app.Get("/", func(c *fiber.Ctx) error {
		return c.Redirect("/ui")
	})
}

// --- Page Data Types ---

type sheetListContent struct {
	Sheets []*store.SheetRecord
}

type propertyView struct {
	sheet.Property
	Key      string
	Value    int
	Resolved bool
}

type scopeView struct {
	ID         string
	Name       string
	Active     bool
	Properties []propertyView
	Actions    []sheet.Action
}

type sheetDetailContent struct {
	Record     *store.SheetRecord
	Scopes     []scopeView
	Unresolved []runtime.Pending
	Passes     int
}

type rollContent struct {
	Record        *store.SheetRecord
	Input         string
	Result        *roll.Result
	HTML          template.HTML
	Errors        []string
	Modifications []string
}

// --- Handlers ---

func (h *Handler) sheetList(c *fiber.Ctx) error {
	records, err := h.store.ListSheets(c.UserContext())
	if err != nil {
		return c.Status(500).SendString(err.Error())
	}
	return h.render(c, "sheets.html", "sheets", "Sheets", sheetListContent{Sheets: records})
}

func (h *Handler) loadRecord(c *fiber.Ctx) (*store.SheetRecord, error) {
	rec, err := h.store.GetSheet(c.UserContext(), c.Params("id"))
	if errors.Is(err, store.ErrNotFound) {
		return nil, h.render(c.Status(404), "notfound.html", "sheets", "Not found", c.Params("id"))
	}
	if err != nil {
		return nil, c.Status(500).SendString(err.Error())
	}
	return rec, nil
}

func (h *Handler) sheetDetail(c *fiber.Ctx) error {
	rec, err := h.loadRecord(c)
	if rec == nil {
		return err
	}
	sh := rec.Sheet
	res := h.engine.BuildContext(sh)

	scopes := []scopeView{buildScope(sheet.ScopeGlobal, "Global", sh.GlobalProperties, nil, res)}
	for _, sub := range sh.SubSheets {
		sv := buildScope(sub.ID, sub.Name, sub.Properties, sub.Actions, res)
		sv.Active = sub.ID == sh.ActiveSubSheetID
		scopes = append(scopes, sv)
	}

	return h.render(c, "sheet.html", "sheets", displayName(rec), sheetDetailContent{
		Record:     rec,
		Scopes:     scopes,
		Unresolved: res.Unresolved,
		Passes:     res.Passes,
	})
}

func buildScope(id, name string, props []sheet.Property, actions []sheet.Action, res *runtime.Resolution) scopeView {
	sv := scopeView{ID: id, Name: name, Actions: actions}
	for _, p := range props {
		key := sheet.QualifiedKey(id, p.ID)
		v, ok := res.Context[key]
		sv.Properties = append(sv.Properties, propertyView{Property: p, Key: key, Value: v, Resolved: ok})
	}
	// Properties with a priority come first, lowest value first.
	sort.SliceStable(sv.Properties, func(i, j int) bool {
		pi, pj := sv.Properties[i].Priority, sv.Properties[j].Priority
		if pi == nil || pj == nil {
			return pi != nil && pj == nil
		}
		return *pi < *pj
	})
	return sv
}

// rollPage rolls either a free-form expression (?expr=) or an action
// (?subsheet=&action=) against the sheet's context.
func (h *Handler) rollPage(c *fiber.Ctx) error {
	rec, err := h.loadRecord(c)
	if rec == nil {
		return err
	}
	content := rollContent{Record: rec}

	var out roll.Outcome
	if actionID := c.Query("action"); actionID != "" {
		subID := c.Query("subsheet", rec.Sheet.ActiveSubSheetID)
		ar, err := h.engine.RollAction(rec.Sheet, subID, actionID, roll.FormatConfig{})
		if err != nil {
			content.Errors = []string{err.Error()}
			return h.render(c.Status(404), "roll.html", "sheets", displayName(rec), content)
		}
		content.Input = ar.Expression
		content.Modifications = ar.Modifications
		out = ar.Outcome
	} else {
		content.Input = strings.TrimSpace(c.Query("expr"))
		if content.Input == "" {
			return h.render(c, "roll.html", "sheets", displayName(rec), content)
		}
		res := h.engine.BuildContext(rec.Sheet)
		out = h.engine.Roll(content.Input, res.Context, roll.FormatConfig{})
	}

	if !out.OK() {
		content.Errors = out.Errors
		return h.render(c.Status(400), "roll.html", "sheets", displayName(rec), content)
	}
	content.Result = out.Result
	if html, err := roll.RenderHTML(out.Result.FormattedString); err == nil {
		content.HTML = template.HTML(html)
	}
	return h.render(c, "roll.html", "sheets", displayName(rec), content)
}

// --- Template Helpers ---

func displayName(rec *store.SheetRecord) string {
	if rec.Sheet != nil && rec.Sheet.Name != "" {
		return rec.Sheet.Name
	}
	return rec.ID
}

func timeAgo(t time.Time) string {
	if t.IsZero() {
		return "—"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		m := int(d.Minutes())
		if m == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", m)
	case d < 24*time.Hour:
		h := int(d.Hours())
		if h == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", h)
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "—"
	}
	return t.Format("2006-01-02 15:04:05")
}

func usageClass(u sheet.Usage) string {
	switch u {
	case sheet.UsageAttribute:
		return "usage-attribute"
	case sheet.UsageSkill:
		return "usage-skill"
	case sheet.UsageHealthResource, sheet.UsagePointResource:
		return "usage-resource"
	case sheet.UsageQuality:
		return "usage-quality"
	default:
		return ""
	}
}

func usageIcon(u sheet.Usage) template.HTML {
	switch u {
	case sheet.UsageAttribute:
		return "&#9670;"
	case sheet.UsageSkill:
		return "&#9733;"
	case sheet.UsageHealthResource:
		return "&#9829;"
	case sheet.UsagePointResource:
		return "&#9679;"
	case sheet.UsageQuality:
		return "&#10022;"
	default:
		return "&#8226;"
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
