package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const DefaultTemplate = `Estimado(a) {{.MemberName}}:
Le recordamos que registra {{.OverdueCount}} {{if eq .OverdueCount 1}}cuota vencida{{else}}cuotas vencidas{{end}} ({{.Periods}}) por un total de {{.Debt}}.
Estado: {{.TierLabel}}.
{{- if .Association}}
{{.Association}}
{{- end}}
{{- if .PaymentInfo}}
{{.PaymentInfo}}
{{- end}}`

// TemplateData provides fields for rendering reminder content.
type TemplateData struct {
	MemberID     string
	MemberName   string
	Tier         string
	TierLabel    string
	OverdueCount int
	Periods      string
	Debt         string
	Association  string
	PaymentInfo  string
}

// Template renders reminder content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a reminder template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("debtor-reminder").Option("missingkey=error").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("reminder template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
