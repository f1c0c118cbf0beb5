package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/jrsteele09/go-user-admin/users"
	"github.com/rs/zerolog/log"
)

//go:embed templates/*
var templateFiles embed.FS

const (
	contentTypeHTML = "text/html; charset=utf-8"
	layoutTemplate  = "layout.html"

	pageLogin    = "login.html"
	pageRegister = "register.html"
	pageUsers    = "users.html"
	pageUserForm = "user_form.html"
)

var pageTemplates = []string{pageLogin, pageRegister, pageUsers, pageUserForm}

// PageData is passed to every view
type PageData struct {
	AppName     string
	Title       string
	CSRFToken   string
	CurrentUser string // Username of the signed in user, empty when anonymous
	Error       string
	Success     string

	Users  []*users.User    // users.html
	User   *users.User      // user_form.html when editing
	Roles  []users.RoleType // user_form.html
	Action string           // Form target
	Form   UserForm         // Values echoed back into forms
}

// UserForm holds submitted form values
type UserForm struct {
	Username string
	Role     users.RoleType
	Blocked  bool
}

func TemplateFilesFS() fs.FS {
	subFS, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		panic("Failed to create templates sub filesystem: " + err.Error())
	}
	return subFS
}

// ParseTemplate parses a page together with the shared layout
func ParseTemplate(name string) (*template.Template, error) {
	return template.New(layoutTemplate).ParseFS(TemplateFilesFS(), layoutTemplate, name)
}

func parsePages() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template, len(pageTemplates))
	for _, name := range pageTemplates {
		tmpl, err := ParseTemplate(name)
		if err != nil {
			return nil, fmt.Errorf("[parsePages] %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return pages, nil
}

// renderPage fills the request scoped fields of data and writes the page
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, name string, data PageData) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Error().Str("template", name).Msg("[renderPage] unknown template")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	data.AppName = s.config.GetAppName()
	data.CSRFToken = CSRFTokenFromContext(r.Context())
	if sess := SessionFromContext(r.Context()); sess.Authenticated() {
		data.CurrentUser = sess.Username
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		log.Err(err).Str("template", name).Msg("[renderPage] failed to render template")
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
