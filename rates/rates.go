// Package rates supplies exchange rates per ordered currency pair.
package rates

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Provider interface {
	Rate(from, to string) decimal.Decimal
}

type Pair struct {
	From string
	To   string
}

func (p Pair) String() string {
	return p.From + "/" + p.To
}

// Table is a static rate lookup. Unknown pairs resolve to 1.
type Table struct {
	rates map[Pair]decimal.Decimal
}

// units of `to` per one unit of `from`
var defaults = map[Pair]string{
	{From: "SGD", To: "USDC"}: "0.74",
	{From: "USDC", To: "USD"}: "1.00",
	{From: "USD", To: "USDC"}: "1.00",
	{From: "USDC", To: "SGD"}: "1.35",
}

func Default() *Table {
	t := &Table{rates: make(map[Pair]decimal.Decimal, len(defaults))}
	for pair, r := range defaults {
		t.rates[pair] = decimal.RequireFromString(r)
	}
	return t
}

func NewTable(rates map[Pair]decimal.Decimal) *Table {
	t := &Table{rates: make(map[Pair]decimal.Decimal, len(rates))}
	for pair, r := range rates {
		t.rates[normalize(pair)] = r
	}
	return t
}

func normalize(p Pair) Pair {
	return Pair{From: strings.ToUpper(p.From), To: strings.ToUpper(p.To)}
}

func (t *Table) Rate(from, to string) decimal.Decimal {
	pair := normalize(Pair{From: from, To: to})
	if pair.From == pair.To {
		return decimal.NewFromInt(1)
	}
	if r, ok := t.rates[pair]; ok {
		return r
	}
	return decimal.NewFromInt(1)
}

func (t *Table) Set(from, to string, rate decimal.Decimal) {
	t.rates[normalize(Pair{From: from, To: to})] = rate
}

// Compose multiplies the single-hop rates along path, e.g. SGD, USDC, USD.
func Compose(p Provider, path ...string) decimal.Decimal {
	rate := decimal.NewFromInt(1)
	for i := 1; i < len(path); i++ {
		rate = rate.Mul(p.Rate(path[i-1], path[i]))
	}
	return rate
}

type fileEntry struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	Rate string `yaml:"rate"`
}

type fileDoc struct {
	Rates []fileEntry `yaml:"rates"`
}

// LoadFile overlays the rates found in a YAML document onto the default table.
func LoadFile(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rates file: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Table, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing rates: %w", err)
	}

	t := Default()
	for i, e := range doc.Rates {
		if e.From == "" || e.To == "" {
			return nil, fmt.Errorf("rate #%d: from and to are required", i)
		}
		r, err := decimal.NewFromString(e.Rate)
		if err != nil {
			return nil, fmt.Errorf("rate %s/%s: %w", e.From, e.To, err)
		}
		if !r.IsPositive() {
			return nil, fmt.Errorf("rate %s/%s must be positive", e.From, e.To)
		}
		t.Set(e.From, e.To, r)
	}
	return t, nil
}
