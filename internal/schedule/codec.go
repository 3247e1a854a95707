package schedule

import (
	"encoding/json"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// itemFields has Item's layout without its decode methods.
type itemFields Item

type excessField struct {
	ExcessRatePercent *decimal.Decimal `json:"excess_rate_percent" yaml:"excess_rate_percent"`
}

// UnmarshalJSON decodes an item. Rated items that omit excess_rate_percent
// get DefaultExcessRatePercent; an explicit 0 is kept.
func (i *Item) UnmarshalJSON(raw []byte) error {
	var fields itemFields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}
	var excess excessField
	if err := json.Unmarshal(raw, &excess); err != nil {
		return err
	}
	*i = Item(fields)
	i.applyDefaultExcess(excess.ExcessRatePercent)
	return nil
}

// UnmarshalYAML follows UnmarshalJSON.
func (i *Item) UnmarshalYAML(node *yaml.Node) error {
	var fields itemFields
	if err := node.Decode(&fields); err != nil {
		return err
	}
	var excess excessField
	if err := node.Decode(&excess); err != nil {
		return err
	}
	*i = Item(fields)
	i.applyDefaultExcess(excess.ExcessRatePercent)
	return nil
}

func (i *Item) applyDefaultExcess(given *decimal.Decimal) {
	if given == nil && !i.IsHeading() {
		i.ExcessRatePercent = DefaultExcessRatePercent
	}
}
