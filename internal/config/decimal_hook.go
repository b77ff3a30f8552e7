package config

import (
	"fmt"
	"reflect"

	"github.com/shopspring/decimal"
)

// decimalDecodeHookFunc lets mapstructure populate decimal.Decimal fields
// from the string or numeric scalars viper produces when parsing YAML,
// since decimal.Decimal has no default mapstructure conversion.
func decimalDecodeHookFunc() func(reflect.Type, reflect.Type, interface{}) (interface{}, error) {
	decimalType := reflect.TypeOf(decimal.Decimal{})
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != decimalType {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			d, err := decimal.NewFromString(v)
			if err != nil {
				return nil, fmt.Errorf("config: decode decimal %q: %w", v, err)
			}
			return d, nil
		case int:
			return decimal.NewFromInt(int64(v)), nil
		case int64:
			return decimal.NewFromInt(v), nil
		case float64:
			return decimal.NewFromFloat(v), nil
		case decimal.Decimal:
			return v, nil
		default:
			return nil, fmt.Errorf("config: cannot decode %T into decimal.Decimal", data)
		}
	}
}
