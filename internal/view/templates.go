package view

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rfpdesk/rfpdesk/internal/authz"
	"github.com/rfpdesk/rfpdesk/internal/identity"
	"github.com/rfpdesk/rfpdesk/internal/shared"
	"github.com/rfpdesk/rfpdesk/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Identity    *identity.Identity
	Data        any
}

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t any) string {
			switch v := t.(type) {
			case time.Time:
				if v.IsZero() {
					return ""
				}
				return v.Format("02 Jan 2006")
			case *time.Time:
				if v == nil || v.IsZero() {
					return ""
				}
				return v.Format("02 Jan 2006")
			default:
				return ""
			}
		},
		"formatDateTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"inputDate": func(t *time.Time) string {
			if t == nil || t.IsZero() {
				return ""
			}
			return t.Format("2006-01-02")
		},
		"can": func(id *identity.Identity, perms ...string) bool {
			if id == nil {
				return false
			}
			required := make([]authz.Permission, len(perms))
			for i, p := range perms {
				required[i] = authz.Permission(p)
			}
			return id.Can(required...)
		},
		"roleLabel": func(r authz.Role) string { return r.Label() },
		"hasPrefix": strings.HasPrefix,
		"add":       func(a, b int) int { return a + b },
		"sub":       func(a, b int) int { return a - b },
		"money":     Money,
		"deref":     Deref,
		"idOf":      IDOf,
		"pageURL":   PageURL,
		"inQuery": func(q url.Values, key, value string) bool {
			for _, v := range q[key] {
				if v == value {
					return true
				}
			}
			return false
		},
		"prettyJSON": PrettyJSON,
		"dict": func(kv ...any) (map[string]any, error) {
			if len(kv)%2 != 0 {
				return nil, fmt.Errorf("dict: odd number of arguments")
			}
			out := make(map[string]any, len(kv)/2)
			for i := 0; i < len(kv); i += 2 {
				key, ok := kv[i].(string)
				if !ok {
					return nil, fmt.Errorf("dict: key %v is not a string", kv[i])
				}
				out[key] = kv[i+1]
			}
			return out, nil
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html", "templates/documents/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	return e.RenderStatus(w, http.StatusOK, name, data)
}

// RenderStatus writes status before executing the template.
func (e *Engine) RenderStatus(w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	return e.templates.ExecuteTemplate(w, name, data)
}

// Execute renders a template outside a response, for documents converted
// to other formats.
func (e *Engine) Execute(w io.Writer, name string, data any) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	return e.templates.ExecuteTemplate(w, name, data)
}

// BaseData fills the values every page needs from the request: CSRF token,
// pending flash and the signed-in identity.
func BaseData(r *http.Request, csrf *shared.CSRFManager, title string) TemplateData {
	data := TemplateData{Title: title, CurrentPath: r.URL.Path}
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if csrf != nil {
			data.CSRFToken = csrf.Token(sess)
		}
		data.Flash = sess.PopFlash()
	}
	if id, ok := identity.FromContext(r.Context()); ok {
		data.Identity = &id
	}
	return data
}

var printer = message.NewPrinter(language.English)

// Money formats an optional amount with thousands separators.
func Money(v *float64) string {
	if v == nil {
		return ""
	}
	return printer.Sprintf("%.0f", *v)
}

// Deref renders optional numbers as plain strings, empty when nil.
func Deref(v any) string {
	switch n := v.(type) {
	case *int:
		if n != nil {
			return strconv.Itoa(*n)
		}
	case *float64:
		if n != nil {
			return strconv.FormatFloat(*n, 'f', -1, 64)
		}
	}
	return ""
}

// IDOf renders an optional UUID, empty when nil.
func IDOf(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

// PageURL returns the query string for q with page replaced.
func PageURL(q url.Values, page int) string {
	next := url.Values{}
	for k, v := range q {
		next[k] = v
	}
	next.Set("page", strconv.Itoa(page))
	return "?" + next.Encode()
}

// PrettyJSON indents raw JSON for display; invalid input is returned as is.
func PrettyJSON(raw string) string {
	if raw == "" || raw == "null" {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(raw), "", "  "); err != nil {
		return raw
	}
	return buf.String()
}
