package notify

import (
	"bytes"
	"fmt"
	"text/template"
)

// Message is a rendered alert ready for a Sink.
type Message struct {
	To       string   `json:"to"`
	Subject  string   `json:"subject"`
	Severity Severity `json:"severity"`
	Body     string   `json:"body"`
	Event    Event    `json:"event"`
}

type alertTemplate struct {
	subject *template.Template
	body    *template.Template
}

func parse(name, text string) *template.Template {
	return template.Must(template.New(name).Parse(text))
}

const detailsBlock = `
Time:     {{ .Event.OccurredAt.UTC.Format "2006-01-02 15:04:05 MST" }}
IP:       {{ .Event.IP }}
Location: {{ or .Event.Location "Unknown" }}
Device:   {{ or .Event.Device "Unknown" }}
OS:       {{ or .Event.OS "Unknown" }}
`

var alertTemplates = map[EventType]alertTemplate{
	EventNewLogin: {
		subject: parse("subject", "New sign-in to your {{ .App }} account"),
		body: parse("new_login",
			`Your {{ .App }} account {{ .Event.Email }} was signed in to from a new session.
` + detailsBlock + `
If this was you, no action is needed. Otherwise change your password now.
`),
	},
	EventPasswordChanged: {
		subject: parse("subject", "Your {{ .App }} password was changed"),
		body: parse("password_changed",
			`The password for {{ .Event.Email }} was changed and all other sessions were signed out.
` + detailsBlock + `
If you did not do this, contact an administrator immediately.
`),
	},
	EventTwoFactorEnabled: {
		subject: parse("subject", "Two-factor authentication enabled on {{ .App }}"),
		body: parse("two_factor_enabled",
			`Two-factor authentication is now required when signing in as {{ .Event.Email }}.
` + detailsBlock),
	},
	EventTwoFactorDisabled: {
		subject: parse("subject", "WARNING: two-factor authentication disabled on {{ .App }}"),
		body: parse("two_factor_disabled",
			`Two-factor authentication was turned OFF for {{ .Event.Email }}. Your account is now protected by its password alone.
` + detailsBlock + `
If you did not make this change, your account may be compromised. Reset your password and re-enable two-factor authentication immediately.
`),
	},
}

// Renderer turns events into messages.
type Renderer struct {
	appName string
}

func NewRenderer(appName string) *Renderer {
	if appName == "" {
		appName = "Catalog Admin"
	}
	return &Renderer{appName: appName}
}

func (r *Renderer) Render(ev Event) (Message, error) {
	tmpl, ok := alertTemplates[ev.Type]
	if !ok {
		return Message{}, fmt.Errorf("[Render] no template for event %q", ev.Type)
	}

	data := struct {
		App   string
		Event Event
	}{App: r.appName, Event: ev}

	var subj, body bytes.Buffer
	if err := tmpl.subject.Execute(&subj, data); err != nil {
		return Message{}, fmt.Errorf("[Render] subject: %w", err)
	}
	if err := tmpl.body.Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("[Render] body: %w", err)
	}

	return Message{
		To:       ev.Email,
		Subject:  subj.String(),
		Severity: ev.Type.Severity(),
		Body:     body.String(),
		Event:    ev,
	}, nil
}
