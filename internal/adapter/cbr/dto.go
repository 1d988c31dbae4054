package cbr

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type ValCurs struct {
	XMLName xml.Name `xml:"ValCurs"`
	Date    string   `xml:"Date,attr"`
	Name    string   `xml:"name,attr"`
	Valutes []Valute `xml:"Valute"`
}

type Valute struct {
	ID        string `xml:"ID,attr"`
	NumCode   string `xml:"NumCode"`
	CharCode  string `xml:"CharCode"`
	Nominal   int    `xml:"Nominal"`
	Name      string `xml:"Name"`
	Value     string `xml:"Value"`
	VunitRate string `xml:"VunitRate"`
}

func parseDecimal(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", "."))
}

// PerUnit is the RUB price of one unit of the currency. VunitRate is used when
// published, otherwise Value / Nominal.
func (v Valute) PerUnit() (decimal.Decimal, error) {
	if v.VunitRate != "" {
		rate, err := parseDecimal(v.VunitRate)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s: VunitRate %q: %w", v.CharCode, v.VunitRate, err)
		}
		if !rate.IsPositive() {
			return decimal.Zero, fmt.Errorf("%s: VunitRate %s is not positive", v.CharCode, rate)
		}
		return rate, nil
	}

	value, err := parseDecimal(v.Value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: Value %q: %w", v.CharCode, v.Value, err)
	}
	if v.Nominal <= 0 {
		return decimal.Zero, fmt.Errorf("%s: nominal %d is not positive", v.CharCode, v.Nominal)
	}
	if !value.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s: value %s is not positive", v.CharCode, value)
	}
	return value.Div(decimal.NewFromInt(int64(v.Nominal))), nil
}
