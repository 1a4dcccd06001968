package mail

import (
	"bytes"
	"errors"
	"fmt"
	"text/template"
)

// Template names understood by the senders in this package. They match the
// names the engine selects per flow branch.
const (
	TemplateWelcome = "otp_welcome"
	TemplateLogin   = "otp_login"
)

var errUnknownTemplate = errors.New("unknown mail template")

type renderedMessage struct {
	Subject string
	Body    string
}

// templateData is the surface the body templates see. Fields mirror the
// engine's data map keys; absent keys render as empty strings and the
// templates are written to tolerate that.
type templateData struct {
	OTP           string
	GivenName     string
	FamilyName    string
	ExpiryMinutes string
}

var (
	welcomeSubject = "Your verification code"
	loginSubject   = "Your sign-in code"

	welcomeBody = template.Must(template.New(TemplateWelcome).Parse(
		"Welcome{{if .GivenName}} {{.GivenName}}{{end}}!\r\n" +
			"\r\n" +
			"Your verification code is: {{.OTP}}\r\n" +
			"\r\n" +
			"Enter it to confirm your email address and finish creating your account.\r\n" +
			"{{if .ExpiryMinutes}}The code expires in {{.ExpiryMinutes}} minutes. {{end}}" +
			"If you did not request this, ignore this email.\r\n"))

	loginBody = template.Must(template.New(TemplateLogin).Parse(
		"Hello{{if .GivenName}} {{.GivenName}}{{end}},\r\n" +
			"\r\n" +
			"Your sign-in code is: {{.OTP}}\r\n" +
			"\r\n" +
			"{{if .ExpiryMinutes}}The code expires in {{.ExpiryMinutes}} minutes. {{end}}" +
			"If you did not try to sign in, you can safely ignore this email.\r\n"))
)

// render resolves a template name plus engine data map into a subject and
// body ready for transport.
func render(name string, data map[string]string) (renderedMessage, error) {
	td := templateData{
		OTP:           data["otp"],
		GivenName:     data["givenName"],
		FamilyName:    data["familyName"],
		ExpiryMinutes: data["expiryMinutes"],
	}

	var (
		subject string
		body    *template.Template
	)
	switch name {
	case TemplateWelcome:
		subject = welcomeSubject
		body = welcomeBody
	case TemplateLogin:
		subject = loginSubject
		body = loginBody
	default:
		return renderedMessage{}, fmt.Errorf("%w: %q", errUnknownTemplate, name)
	}

	var buf bytes.Buffer
	if err := body.Execute(&buf, td); err != nil {
		return renderedMessage{}, err
	}

	return renderedMessage{Subject: subject, Body: buf.String()}, nil
}
