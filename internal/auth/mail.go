package auth

import (
	"bytes"
	"html/template"
	texttemplate "text/template"
)

type mailContent struct {
	subject string
	text    string
	html    string
}

var (
	confirmText = texttemplate.Must(texttemplate.New("confirm").Parse(`Hello {{.Name}},

Confirm your RFP Desk account by opening the link below:

{{.Link}}

If you did not sign up you can ignore this message.
`))
	confirmHTML = template.Must(template.New("confirm").Parse(`<p>Hello {{.Name}},</p>
<p>Confirm your RFP Desk account by opening the link below:</p>
<p><a href="{{.Link}}">Confirm email address</a></p>
<p>If you did not sign up you can ignore this message.</p>
`))
	recoveryText = texttemplate.Must(texttemplate.New("recovery").Parse(`A password reset was requested for your RFP Desk account.

Choose a new password here:

{{.Link}}

The link expires in one hour. If you did not ask for it, ignore this message.
`))
	recoveryHTML = template.Must(template.New("recovery").Parse(`<p>A password reset was requested for your RFP Desk account.</p>
<p><a href="{{.Link}}">Choose a new password</a></p>
<p>The link expires in one hour. If you did not ask for it, ignore this message.</p>
`))
)

type mailData struct {
	Name string
	Link string
}

func confirmationMail(name, link string) mailContent {
	data := mailData{Name: name, Link: link}
	return mailContent{
		subject: "Confirm your RFP Desk account",
		text:    execText(confirmText, data),
		html:    execHTML(confirmHTML, data),
	}
}

func recoveryMail(link string) mailContent {
	data := mailData{Link: link}
	return mailContent{
		subject: "Reset your RFP Desk password",
		text:    execText(recoveryText, data),
		html:    execHTML(recoveryHTML, data),
	}
}

func execText(t *texttemplate.Template, data mailData) string {
	var buf bytes.Buffer
	_ = t.Execute(&buf, data)
	return buf.String()
}

func execHTML(t *template.Template, data mailData) string {
	var buf bytes.Buffer
	_ = t.Execute(&buf, data)
	return buf.String()
}
