package web

import (
	"embed"
	"fmt"
	"html/template"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "propchain/internal/common/errors"
	"propchain/internal/common/validation"
	notifmodels "propchain/internal/features/notification/models"
	walletmodels "propchain/internal/features/wallet/models"
)

//go:embed templates/*.html
var templateFS embed.FS

const toastsPerPage = 5

type SessionSource interface {
	Session() walletmodels.Session
}

type NotificationSource interface {
	Recent(n int) []notifmodels.Notification
}

// Chrome is the data every page shares: header, wallet box and toasts.
type Chrome struct {
	Session       walletmodels.Session
	Notifications []notifmodels.Notification
	ExplorerURL   string
	Mode          string
	Path          string
}

// Renderer renders the embedded pages with the shared chrome.
type Renderer struct {
	session     SessionSource
	notes       NotificationSource
	explorerURL string
	mode        string
	tmpl        *template.Template
}

func NewRenderer(session SessionSource, notes NotificationSource, explorerURL, mode string) (*Renderer, error) {
	r := &Renderer{
		session:     session,
		notes:       notes,
		explorerURL: strings.TrimRight(explorerURL, "/"),
		mode:        mode,
	}
	tmpl, err := template.New("").Funcs(r.funcs()).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	r.tmpl = tmpl
	return r, nil
}

// Templates is passed to gin.Engine.SetHTMLTemplate.
func (r *Renderer) Templates() *template.Template {
	return r.tmpl
}

func (r *Renderer) chrome(c *gin.Context) Chrome {
	return Chrome{
		Session:       r.session.Session(),
		Notifications: r.notes.Recent(toastsPerPage),
		ExplorerURL:   r.explorerURL,
		Mode:          r.mode,
		Path:          c.Request.URL.Path,
	}
}

// Page renders the named template. data may be nil.
func (r *Renderer) Page(c *gin.Context, status int, name, title string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["Title"] = title
	data["Chrome"] = r.chrome(c)
	c.HTML(status, name, data)
}

// Error renders the error page; it matches middleware.ErrorRenderer.
func (r *Renderer) Error(c *gin.Context, status int, appErr *apperrors.AppError) {
	r.Page(c, status, "error", "Error", gin.H{
		"Status":  status,
		"Code":    string(appErr.Code),
		"Message": apperrors.UserMessage(appErr),
	})
}

// RedirectBack returns to the referring page of this site, or fallback.
func RedirectBack(c *gin.Context, fallback string) {
	target := fallback
	if ref, err := url.Parse(c.GetHeader("Referer")); err == nil && ref.Path != "" && (ref.Host == "" || ref.Host == c.Request.Host) {
		target = ref.RequestURI()
	}
	c.Redirect(http.StatusSeeOther, target)
}

func (r *Renderer) funcs() template.FuncMap {
	return template.FuncMap{
		"short":   shortAddress,
		"usd":     formatUSD,
		"eth":     formatWei,
		"date":    func(t time.Time) string { return t.Format("Jan 2, 2006") },
		"txURL":   func(hash string) string { return r.explorerURL + "/tx/" + hash },
		"addrURL": func(addr string) string { return r.explorerURL + "/address/" + addr },
		"title":   func(s string) string { return strings.ToUpper(s[:min(1, len(s))]) + s[min(1, len(s)):] },
	}
}

func shortAddress(addr string) string {
	return walletmodels.Session{Address: addr}.ShortAddress()
}

func formatWei(wei *big.Int) string {
	return validation.FormatEther(wei, 4)
}

// formatUSD renders whole dollars with thousands separators.
func formatUSD(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	digits := strconv.FormatInt(v, 10)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	return sign + "$" + b.String()
}
