package shipping

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed zones.yaml
var defaultZonesYAML []byte

// 郵便番号の範囲ごとの追加料金
type Zone struct {
	Label        string          `yaml:"label"`
	From         int             `yaml:"from"`
	To           int             `yaml:"to"`
	Surcharge    decimal.Decimal `yaml:"surcharge"`
	ExtraMinutes int             `yaml:"extra_minutes"`
}

func (z Zone) contains(code int) bool {
	return code >= z.From && code <= z.To
}

// 配送料金の設定一式（静的な参照データ）
type Table struct {
	MinimumOrder          decimal.Decimal `yaml:"minimum_order"`
	FreeShippingThreshold decimal.Decimal `yaml:"free_shipping_threshold"`
	BaseFee               decimal.Decimal `yaml:"base_fee"`
	Zones                 []Zone          `yaml:"zones"`
	Fallback              Zone            `yaml:"fallback"`
}

// 埋め込みのゾーン表
func DefaultTable() Table {
	t, err := ParseTable(defaultZonesYAML)
	if err != nil {
		panic(err)
	}
	return t
}

// pathが空なら埋め込みのゾーン表を使う
func LoadTable(path string) (Table, error) {
	if path == "" {
		return ParseTable(defaultZonesYAML)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read zones file: %w", err)
	}
	return ParseTable(raw)
}

func ParseTable(raw []byte) (Table, error) {
	var t Table
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Table{}, fmt.Errorf("parse zones: %w", err)
	}
	if err := t.validate(); err != nil {
		return Table{}, err
	}
	sort.Slice(t.Zones, func(i, j int) bool { return t.Zones[i].From < t.Zones[j].From })
	return t, nil
}

func (t Table) validate() error {
	if t.MinimumOrder.IsNegative() || t.FreeShippingThreshold.IsNegative() || t.BaseFee.IsNegative() {
		return fmt.Errorf("zones: amounts must be >= 0")
	}
	if t.Fallback.Label == "" {
		return fmt.Errorf("zones: fallback label is required")
	}
	for i, z := range t.Zones {
		if z.Label == "" {
			return fmt.Errorf("zones[%d]: label is required", i)
		}
		if z.From > z.To {
			return fmt.Errorf("zones[%d]: from must be <= to", i)
		}
		if z.Surcharge.IsNegative() {
			return fmt.Errorf("zones[%d]: surcharge must be >= 0", i)
		}
		for j := 0; j < i; j++ {
			o := t.Zones[j]
			if z.From <= o.To && o.From <= z.To {
				return fmt.Errorf("zones[%d] overlaps zones[%d]", i, j)
			}
		}
	}
	return nil
}

// 郵便番号からゾーンを引く。範囲外は fallback。
func (t Table) ZoneFor(code int) Zone {
	for _, z := range t.Zones {
		if z.contains(code) {
			return z
		}
	}
	return t.Fallback
}
