package extract

import "regexp"

// Field names reported in Outcome.Missing.
const (
	FieldInstallation  = "installation"
	FieldAmount        = "amount"
	FieldDueDate       = "due_date"
	FieldIssueDate     = "issue_date"
	FieldInvoiceNumber = "invoice_number"
	FieldConsumption   = "consumption"
	FieldPeriod        = "period"
)

// Patterns run against accent-folded text. Each list is ordered from most to
// least specific and the first match wins; capture group 1 is the value.
type Patterns struct {
	Installation  []*regexp.Regexp
	Amount        []*regexp.Regexp
	DueDate       []*regexp.Regexp
	IssueDate     []*regexp.Regexp
	InvoiceNumber []*regexp.Regexp
	Consumption   []*regexp.Regexp
	Period        []*regexp.Regexp

	InjectedKWh       []*regexp.Regexp
	CompensatedKWh    []*regexp.Regexp
	CreditBalanceKWh  []*regexp.Regexp
	CompensationTUSD  []*regexp.Regexp
	CompensationTE    []*regexp.Regexp
	TotalCompensation []*regexp.Regexp
}

const (
	num  = `(-?[0-9][0-9.,]*)`
	date = `(\d{2}/\d{2}/\d{4})`
)

func mustAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// DefaultPatterns returns the invoice layout patterns.
func DefaultPatterns() Patterns {
	return Patterns{
		Installation: mustAll(
			`(?i)n[o°º]?\.?\s*da\s+instalacao[:\s]*(\d{6,12})`,
			`(?i)instalacao[:\s]*(\d{6,12})`,
			`(?i)\bUC[:\s]*(\d{6,12})`,
			`(?i)unidade\s+consumidora[:\s]*(\d{6,12})`,
			`\b(\d{7,10})\b`,
		),
		Amount: mustAll(
			`(?i)total\s+a\s+pagar[:\s]*R\$[:\s]*([0-9][0-9.,]*)`,
			`(?i)valor\s+total[:\s]*R\$[:\s]*([0-9][0-9.,]*)`,
			`(?i)R\$[:\s]*([0-9][0-9.,]*)`,
		),
		DueDate: mustAll(
			`(?i)vencimento[:\s]*`+date,
			`(?i)data\s+limite[:\s]*`+date,
			date,
		),
		IssueDate: mustAll(
			`(?i)data\s+de\s+emissao[:\s]*`+date,
			`(?i)emissao[:\s]*`+date,
		),
		InvoiceNumber: mustAll(
			`(?i)nota\s+fiscal\s*(?:n[o°º]\.?)?[:\s]*(\d[\d.]*\d)`,
			`(?i)\bNF-?e?\s*(?:n[o°º]\.?)?[:\s]*(\d[\d.]*\d)`,
		),
		Consumption: mustAll(
			`(?i)consumo(?:\s+(?:ativo|faturado|total|medido))?[^\d\n]{0,20}([0-9][0-9.,]*)\s*kwh`,
			`(?i)([0-9][0-9.,]*)\s*kwh`,
		),
		Period: mustAll(
			`(?i)(?:mes\s+de\s+referencia|referencia|competencia)[:\s]*(\d{2}/\d{4})`,
			`(?:^|[^/\d])(\d{2}/\d{4})\b`,
		),
		InjectedKWh: mustAll(
			`(?i)energia\s+injetada[^\d\n-]*`+num+`\s*kwh`,
		),
		CompensatedKWh: mustAll(
			`(?i)energia\s+compensada[^\d\n-]*`+num+`\s*kwh`,
		),
		CreditBalanceKWh: mustAll(
			`(?i)saldo(?:\s+de)?(?:\s+creditos?)?[^\d\n-]*`+num+`\s*kwh`,
		),
		CompensationTUSD: mustAll(
			`(?i)compensacao\s+(?:de\s+)?TUSD[^\d\n-]*`+num,
		),
		CompensationTE: mustAll(
			`(?i)compensacao\s+(?:de\s+)?TE\b[^\d\n-]*`+num,
		),
		TotalCompensation: mustAll(
			`(?i)total\s+(?:da\s+|de\s+)?compensacao[^\d\n-]*`+num,
		),
	}
}

// first returns the first capture of the first matching pattern.
func first(text string, patterns []*regexp.Regexp) (string, bool) {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	}
	return "", false
}
