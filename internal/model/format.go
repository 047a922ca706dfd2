package model

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var brPrinter = message.NewPrinter(language.BrazilianPortuguese)

// FormatNumber renders f with pt-BR separators and the given precision.
func FormatNumber(f float64, precision int) string {
	return brPrinter.Sprint(number.Decimal(f, number.Scale(precision)))
}

// FormatBRL formats d with two decimals, "." thousands and "," decimal mark.
func FormatBRL(d decimal.Decimal) string {
	return FormatNumber(d.Round(2).InexactFloat64(), 2)
}
