package notify

import (
	"bytes"
	"html/template"
	"strconv"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/samber/oops"

	"studentauth/internal/auth"
)

type message struct {
	subject string
	text    *texttemplate.Template
}

var messages = map[auth.NotificationKind]message{
	auth.NotifyVerification: {
		subject: "Email verification",
		text: texttemplate.Must(texttemplate.New("verification").Parse(
			"Hi {{.Name}},\n\nPlease verify your email by clicking the link below:\n\n{{.Link}}\n\nThis link will expire in {{.Validity}}.",
		)),
	},
	auth.NotifyPasswordResetOTP: {
		subject: "Reset password OTP",
		text: texttemplate.Must(texttemplate.New("otp").Parse(
			"Dear {{.Name}}, your reset password OTP is {{.OTP}}. OTP is valid for {{.Validity}}.",
		)),
	},
	auth.NotifyPasswordChanged: {
		subject: "Password change confirmation",
		text: texttemplate.Must(texttemplate.New("changed").Parse(
			"Dear {{.Name}}, you have successfully changed your password.",
		)),
	},
}

var htmlBody = template.Must(template.New("html").Parse(
	`{{range .}}<p>{{.}}</p>{{end}}`,
))

type templateData struct {
	Name     string
	Link     string
	OTP      string
	Validity string
}

// Render turns a notification into an email.
func Render(n auth.Notification) (Email, error) {
	msg, ok := messages[n.Kind]
	if !ok {
		return Email{}, oops.With("kind", string(n.Kind)).Errorf("unknown notification kind")
	}

	data := templateData{Name: n.Name, Link: n.Link, Validity: humanDuration(n.ValidFor)}
	if n.OTP != 0 {
		data.OTP = strconv.Itoa(n.OTP)
	}

	var text bytes.Buffer
	if err := msg.text.Execute(&text, data); err != nil {
		return Email{}, oops.With("kind", string(n.Kind)).Wrap(err)
	}

	var html bytes.Buffer
	if err := htmlBody.Execute(&html, strings.Split(text.String(), "\n\n")); err != nil {
		return Email{}, oops.With("kind", string(n.Kind)).Wrap(err)
	}

	return Email{
		To:      n.To,
		Subject: msg.subject,
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

// humanDuration formats d as whole hours or minutes.
func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute:
		return plural(int(d.Round(time.Minute)/time.Minute), "minute")
	default:
		return plural(int(d.Round(time.Second)/time.Second), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
