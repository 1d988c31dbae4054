package service

import (
	"fmt"
	"strings"

	"lifeos-currency/internal/entity"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

type symbolLayout func(symbol, separator, number string) string

var symbolLayouts = map[entity.SymbolPosition]symbolLayout{
	entity.SymbolBefore: func(symbol, separator, number string) string {
		return symbol + separator + number
	},
	entity.SymbolAfter: func(symbol, separator, number string) string {
		return number + separator + symbol
	},
}

// MoneyFormatter renders amounts for display. The layout and separators are
// fixed at construction.
type MoneyFormatter struct {
	registry           *entity.Registry
	layout             symbolLayout
	symbolSeparator    string
	thousandsSeparator string
	decimalSeparator   string
}

func NewMoneyFormatter(registry *entity.Registry, opts entity.DisplayOptions) (*MoneyFormatter, error) {
	layout, ok := symbolLayouts[opts.SymbolPosition]
	if !ok {
		return nil, fmt.Errorf("unknown symbol position %q", opts.SymbolPosition)
	}

	f := &MoneyFormatter{
		registry:           registry,
		layout:             layout,
		symbolSeparator:    opts.SymbolSeparator,
		thousandsSeparator: opts.ThousandsSeparator,
		decimalSeparator:   opts.DecimalSeparator,
	}

	if opts.Locale != "" {
		tag, err := language.Parse(opts.Locale)
		if err != nil {
			return nil, fmt.Errorf("display locale %q: %w", opts.Locale, err)
		}
		f.thousandsSeparator, f.decimalSeparator = localeSeparators(tag)
	}

	if f.decimalSeparator == "" {
		return nil, fmt.Errorf("decimal separator must not be empty")
	}

	return f, nil
}

// localeSeparators reads the grouping and decimal marks CLDR uses for tag by
// formatting a sample number.
func localeSeparators(tag language.Tag) (thousands, decimalMark string) {
	sample := message.NewPrinter(tag).Sprint(number.Decimal(12345.6, number.Scale(1)))

	i := strings.Index(sample, "12")
	j := strings.Index(sample, "345")
	k := strings.LastIndex(sample, "6")
	if i < 0 || j < i+2 || k < j+3 {
		return ",", "."
	}
	return sample[i+2 : j], sample[j+3 : k]
}

func (f *MoneyFormatter) Format(amount decimal.Decimal, code entity.CurrencyCode) (string, error) {
	currency, err := f.registry.Lookup(code)
	if err != nil {
		return "", err
	}

	rounded := amount.Round(currency.Decimals)
	text := f.layout(currency.Symbol, f.symbolSeparator, f.formatNumber(rounded.Abs(), currency.Decimals))
	if rounded.IsNegative() {
		text = "-" + text
	}
	return text, nil
}

func (f *MoneyFormatter) FormatMoney(m entity.Money) (string, error) {
	return f.Format(m.Amount, m.Currency)
}

func (f *MoneyFormatter) formatNumber(abs decimal.Decimal, decimals int32) string {
	fixed := abs.StringFixed(decimals)

	integer, fraction, _ := strings.Cut(fixed, ".")
	integer = groupThousands(integer, f.thousandsSeparator)

	if decimals == 0 {
		return integer
	}
	return integer + f.decimalSeparator + fraction
}

func groupThousands(digits, separator string) string {
	if separator == "" || len(digits) <= 3 {
		return digits
	}

	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteString(separator)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
