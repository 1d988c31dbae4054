package entity

import (
	"fmt"
	"strings"
)

type CurrencyCode string

func (c CurrencyCode) String() string {
	return string(c)
}

// NormalizeCode trims and upper-cases user supplied codes.
func NormalizeCode(code string) CurrencyCode {
	return CurrencyCode(strings.ToUpper(strings.TrimSpace(code)))
}

type Currency struct {
	Code     CurrencyCode `mapstructure:"code" json:"code"`
	Name     string       `mapstructure:"name" json:"name"`
	Symbol   string       `mapstructure:"symbol" json:"symbol"`
	Decimals int32        `mapstructure:"decimals" json:"decimals"`
}

// CurrencyPair is ordered: EUR/MKD and MKD/EUR are different pairs.
type CurrencyPair struct {
	From CurrencyCode `json:"from"`
	To   CurrencyCode `json:"to"`
}

func NewPair(from, to CurrencyCode) CurrencyPair {
	return CurrencyPair{From: from, To: to}
}

func (p CurrencyPair) String() string {
	return fmt.Sprintf("%s/%s", p.From, p.To)
}

func (p CurrencyPair) IsIdentity() bool {
	return p.From == p.To
}
