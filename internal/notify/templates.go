// Package notify renders consumption alerts and delivers them through a
// Messenger, one recipient at a time.
package notify

import (
	"bytes"
	"os"
	"text/template"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/enel-control/enel-cli/internal/model"
)

// Template keys beyond the per-tier ones.
const (
	KeySummary    = "summary"
	KeyDuplicates = "duplicates"
)

const header = `A Paz de Deus!

📍 Casa de Oração: {{.Unit}}
⚡ Instalação ENEL: {{.Installation}}
📅 Vencimento: {{.DueDate}}
💰 Valor da Conta: {{.Amount}}

━━━━━━━━━━━━━━━━
📊 Consumo Atual: {{kwh .ConsumptionKWh}} kWh
`

const comparison = `📉 Média (6 meses): {{kwh .AverageKWh}} kWh
`

const footer = `
🤖 Sistema ENEL Automático
🙏 Deus abençoe!`

// DefaultTemplates holds one template per tier plus the admin messages.
var DefaultTemplates = map[string]string{
	string(model.TierNoData): header + `⚠️ Consumo não identificado na fatura
━━━━━━━━━━━━━━━━
` + footer,

	string(model.TierNoHistory): header + `{{if .HasOffset}}☀️ Economia Fotovoltaica: {{.Compensation}}
✅ Sistema solar funcionando
{{else}}ℹ️ Sem histórico suficiente para comparação
{{end}}━━━━━━━━━━━━━━━━
` + footer,

	string(model.TierModerate): `A Paz de Deus!

🟢 CONSUMO MODERADO

` + trimGreeting(header) + comparison + `📉 Redução: {{kwh .DeviationAbsolute}} kWh ({{pct .DeviationPercent}})
{{if .HasOffset}}☀️ Economia Fotovoltaica: {{.Compensation}}
{{end}}━━━━━━━━━━━━━━━━

✅ PARABÉNS:
🔹 Consumo econômico
🔹 Uso consciente da energia
{{if .HasOffset}}🔹 Sistema fotovoltaico otimizando economia{{else}}🔹 Considere sistema fotovoltaico para mais economia{{end}}
` + footer,

	string(model.TierAboveAverage): `A Paz de Deus!

🟡 CONSUMO ACIMA DA MÉDIA

` + trimGreeting(header) + comparison + `📈 Aumento: +{{kwh .DeviationAbsolute}} kWh ({{pct .DeviationPercent}})
{{if .HasOffset}}☀️ Economia Fotovoltaica: {{.Compensation}}
{{end}}━━━━━━━━━━━━━━━━

ℹ️ INFORMATIVO:
🔹 Aumento dentro do aceitável
🔹 Monitorar próximas faturas
🔹 Verificar se foi uso pontual
{{if .HasOffset}}🔹 Sistema fotovoltaico compensando parcialmente{{else}}🔹 Ar condicionado pode ter sido usado mais{{end}}
` + footer,

	string(model.TierHigh): `A Paz de Deus!

🟠 CONSUMO ALTO

` + trimGreeting(header) + comparison + `📈 Aumento: +{{kwh .DeviationAbsolute}} kWh ({{pct .DeviationPercent}})
{{if .HasOffset}}⚠️ Fotovoltaico pode estar mascarando alto consumo
💰 Sem fotovoltaico seria: {{.WithoutOffset}}
☀️ Economia: {{.Compensation}}
{{else}}⚠️ Consumo bem acima da média
{{end}}━━━━━━━━━━━━━━━━

🚨 INVESTIGAR:
🔹 Ar condicionado pode ter ficado ligado
🔹 Verificar equipamentos elétricos
🔹 Monitorar próximas faturas
` + footer,

	string(model.TierCritical): `A Paz de Deus!

🔴 CONSUMO CRÍTICO

` + trimGreeting(header) + comparison + `📈 Aumento: +{{kwh .DeviationAbsolute}} kWh ({{pct .DeviationPercent}})
{{if .HasOffset}}⚠️ ATENÇÃO: Fotovoltaico mascarando consumo!
💰 Sem fotovoltaico seria: {{.WithoutOffset}}
☀️ Economia atual: {{.Compensation}}
{{end}}━━━━━━━━━━━━━━━━

🚨 AÇÃO URGENTE:
🔹 Verificar ar condicionado (principal causa)
🔹 Confirmar se equipamentos foram desligados
🔹 Investigar uso excessivo de energia
` + footer,

	KeySummary: `A Paz de Deus!

📊 RESUMO MENSAL ENEL - {{.Period}}

━━━━━━━━━━━━━━━━
📈 Faturas Recebidas: {{.Received}}
📋 Faturas Pendentes: {{.Outstanding}}
💰 Valor Total: {{.TotalAmount}}
{{if eq .Outstanding 0}}✅ Processamento completo{{else}}⚠️ {{.Outstanding}} fatura(s) pendente(s){{end}}
━━━━━━━━━━━━━━━━
` + footer,

	KeyDuplicates: `A Paz de Deus!

📋 CONTROLE DE DUPLICATAS ENEL

━━━━━━━━━━━━━━━━
📊 Emails duplicados ignorados: {{.DuplicateEmails}}
📄 Faturas duplicadas ignoradas: {{.DuplicateInvoices}}
🔄 Instalações reprocessadas: {{.Reprocessed}}
━━━━━━━━━━━━━━━━

✅ Sistema funcionando corretamente!
` + footer,
}

// trimGreeting drops the greeting line so tier headlines can sit above the
// shared unit block.
func trimGreeting(s string) string {
	return s[len("A Paz de Deus!\n\n"):]
}

// TemplateData provides fields for rendering notification content. Amounts
// arrive preformatted as R$ strings.
type TemplateData struct {
	Recipient    string
	Unit         string
	Installation string
	DueDate      string
	Amount       string

	ConsumptionKWh    float64
	AverageKWh        float64
	DeviationAbsolute float64
	DeviationPercent  float64

	HasOffset      bool
	Compensation   string
	WithoutOffset  string
	SavingsPercent float64

	Period            string
	Received          int
	Outstanding       int
	TotalAmount       string
	DuplicateEmails   int
	DuplicateInvoices int
	Reprocessed       int
}

var funcs = template.FuncMap{
	"kwh": func(f float64) string { return model.FormatNumber(f, 0) },
	"pct": func(f float64) string { return model.FormatNumber(f, 1) + "%" },
}

// Templates renders notification content by key.
type Templates struct {
	set map[string]*template.Template
}

// NewTemplates parses DefaultTemplates with overrides applied on top. Keys
// that name neither a tier nor an admin message are rejected.
func NewTemplates(overrides map[string]string) (*Templates, error) {
	merged := make(map[string]string, len(DefaultTemplates))
	for k, v := range DefaultTemplates {
		merged[k] = v
	}
	for k, v := range overrides {
		if _, ok := DefaultTemplates[k]; !ok {
			return nil, eris.Errorf("notify: unknown template %q", k)
		}
		if v != "" {
			merged[k] = v
		}
	}

	t := &Templates{set: make(map[string]*template.Template, len(merged))}
	for k, v := range merged {
		parsed, err := template.New(k).Funcs(funcs).Parse(v)
		if err != nil {
			return nil, eris.Wrapf(err, "notify: parse template %q", k)
		}
		t.set[k] = parsed
	}
	return t, nil
}

// LoadTemplates reads a YAML map of key to template text. An empty path
// yields the defaults.
func LoadTemplates(path string) (*Templates, error) {
	if path == "" {
		return NewTemplates(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "notify: read templates file %s", path)
	}
	var overrides map[string]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, eris.Wrapf(err, "notify: parse templates file %s", path)
	}
	return NewTemplates(overrides)
}

// Render applies the template named key to data.
func (t *Templates) Render(key string, data TemplateData) (string, error) {
	if t == nil {
		return "", eris.New("notify: nil templates")
	}
	tpl, ok := t.set[key]
	if !ok {
		return "", eris.Errorf("notify: no template %q", key)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", eris.Wrapf(err, "notify: render %q", key)
	}
	return buf.String(), nil
}
