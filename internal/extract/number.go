package extract

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

var centsDot = regexp.MustCompile(`^\d+\.\d{2}$`)

// NormalizeNumber parses a number written in either pt-BR or en style.
//
//	"1.126,37" -> 1126.37  comma is the decimal mark, dots are stripped
//	"126.37"   -> 126.37   one dot followed by exactly two digits
//	"1.126"    -> 1126     any other dot is a thousands separator
//	"126"      -> 126
//	",50"      -> 0.50
func NormalizeNumber(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimRight(s, ".,")
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return decimal.Zero, eris.Errorf("extract: empty number %q", raw)
	}

	switch {
	case strings.Contains(s, ","):
		if strings.Count(s, ",") > 1 {
			return decimal.Zero, eris.Errorf("extract: ambiguous number %q", raw)
		}
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case centsDot.MatchString(s):
		// already in decimal form
	case strings.HasPrefix(s, ".") && strings.Count(s, ".") == 1:
		s = "0" + s
	default:
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, eris.Wrapf(err, "extract: parse number %q", raw)
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

// normalizeFloat is NormalizeNumber for quantities.
func normalizeFloat(raw string) (float64, error) {
	d, err := NormalizeNumber(raw)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}
