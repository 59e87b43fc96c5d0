package main

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

//go:embed templates/portal/*.tmpl static/*
var portalAssetsFS embed.FS

const (
	templateLayoutPath          = "templates/portal/layout.tmpl"
	templateHomePath            = "templates/portal/home.tmpl"
	templateLoginPath           = "templates/portal/login.tmpl"
	templateSignupPath          = "templates/portal/signup.tmpl"
	templateComplaintFormPath   = "templates/portal/complaint_form.tmpl"
	templateComplaintResultPath = "templates/portal/complaint_success.tmpl"
	templateStatusPath          = "templates/portal/status.tmpl"
	templateAdminDashboardPath  = "templates/portal/admin_dashboard.tmpl"
	templateAdminHeatmapPath    = "templates/portal/admin_heatmap.tmpl"
	templateAdminSentimentPath  = "templates/portal/admin_sentiment.tmpl"
	templateForumPath           = "templates/portal/forum.tmpl"
	templateForumTrendingPath   = "templates/portal/forum_trending.tmpl"
	templateErrorPath           = "templates/portal/error.tmpl"
)

type templateRenderer struct {
	env string
}

func newTemplateRenderer(env string) *templateRenderer {
	return &templateRenderer{env: env}
}

func (r *templateRenderer) templatesForRender(contentTemplatePath string) (*template.Template, error) {
	var sourceFS fs.FS
	if r.env == "development" {
		sourceFS = os.DirFS(".")
	} else {
		sourceFS = portalAssetsFS
	}

	templates, err := template.New("layout.tmpl").Funcs(template.FuncMap{
		"join": strings.Join,
		"add": func(a, b int) int {
			return a + b
		},
	}).ParseFS(sourceFS, templateLayoutPath, contentTemplatePath)
	if err != nil {
		return nil, fmt.Errorf("parse portal templates: %w", err)
	}
	return templates, nil
}

func staticFileSystem(env string) (http.FileSystem, error) {
	if env == "development" {
		return http.Dir("static"), nil
	}

	sub, err := fs.Sub(portalAssetsFS, "static")
	if err != nil {
		return nil, fmt.Errorf("portal static fs: %w", err)
	}
	return http.FS(sub), nil
}

type baseViewData struct {
	Title          string
	Lang           string
	Languages      []string
	Text           map[string]string
	Session        *PortalSession
	IsAdmin        bool
	AuthEnabled    bool
	CurrentPath    string
	ActiveNav      string
	ErrorMessage   string
	NoticeMessage  string
	WarningMessage string
}

type errorViewData struct {
	baseViewData
	Message   string
	ReloadURL string
	Details   string
}

func (a *App) baseData(c *gin.Context, titleKey, activeNav string) baseViewData {
	lang := a.languageFromRequest(c)
	session := a.currentSession(c)
	return baseViewData{
		Title:          t(lang, titleKey),
		Lang:           lang,
		Languages:      supportedLanguages,
		Text:           texts(lang),
		Session:        session,
		IsAdmin:        session != nil && a.isAdminEmail(session.Email),
		AuthEnabled:    a.cfg.SupabaseConfigured,
		CurrentPath:    c.Request.URL.RequestURI(),
		ActiveNav:      activeNav,
		ErrorMessage:   strings.TrimSpace(c.Query("error")),
		NoticeMessage:  strings.TrimSpace(c.Query("notice")),
		WarningMessage: strings.TrimSpace(c.Query("warning")),
	}
}

func (a *App) renderTemplate(c *gin.Context, status int, contentTemplatePath string, data any) {
	templates, err := a.templates.templatesForRender(contentTemplatePath)
	if err != nil {
		a.log.Error("failed to load templates", "template", contentTemplatePath, "err", err)
		c.String(http.StatusInternalServerError, "template error")
		return
	}

	c.Status(status)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := templates.ExecuteTemplate(c.Writer, "layout", data); err != nil {
		a.log.Error("failed to render template", "template", contentTemplatePath, "err", err)
	}
}
