package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/ZhengyiNLP/sister-expense-tracker/models"
)

const DefaultResetPath = "/reset-password.html"

//go:embed templates/*
var templateFS embed.FS

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html"))
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt"))
)

// Notifier delivers account notifications to users.
type Notifier interface {
	SendPasswordReset(ctx context.Context, u *models.User, token string, validFor time.Duration) error
}

// ResetNotifier renders the password reset email and hands it to a Mailer.
type ResetNotifier struct {
	mailer    Mailer
	siteURL   string
	resetPath string
}

func NewResetNotifier(mailer Mailer, siteURL, resetPath string) *ResetNotifier {
	if resetPath == "" {
		resetPath = DefaultResetPath
	}
	return &ResetNotifier{
		mailer:    mailer,
		siteURL:   strings.TrimRight(siteURL, "/"),
		resetPath: "/" + strings.TrimLeft(resetPath, "/"),
	}
}

// ResetLink builds <site><path>?token=<token>.
func (n *ResetNotifier) ResetLink(token string) string {
	return n.siteURL + n.resetPath + "?token=" + url.QueryEscape(token)
}

type resetEmail struct {
	Name     string
	Link     string
	ValidFor string
}

func (n *ResetNotifier) SendPasswordReset(ctx context.Context, u *models.User, token string, validFor time.Duration) error {
	name := u.Name
	if name == "" {
		name = u.Username
	}
	data := resetEmail{Name: name, Link: n.ResetLink(token), ValidFor: humanDuration(validFor)}

	var html, text bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&html, "reset_password.html", data); err != nil {
		return fmt.Errorf("notify.SendPasswordReset: %w", err)
	}
	if err := textTemplates.ExecuteTemplate(&text, "reset_password.txt", data); err != nil {
		return fmt.Errorf("notify.SendPasswordReset: %w", err)
	}

	return n.mailer.Send(ctx, Message{
		To:      u.Email,
		Subject: "Reset your password",
		Text:    text.String(),
		HTML:    html.String(),
	})
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		if h := int(d / time.Hour); h != 1 {
			return fmt.Sprintf("%d hours", h)
		}
		return "1 hour"
	case d >= time.Minute && d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	default:
		return d.String()
	}
}
