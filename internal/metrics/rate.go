package metrics

import (
	"encoding/json"
	"fmt"
)

// Rate is a derived ratio that is undefined when its denominator is zero.
type Rate struct {
	Value   float64
	Defined bool
}

// Undefined is the rate of a zero denominator.
var Undefined = Rate{}

func ratio(num, den float64) Rate {
	if den == 0 {
		return Undefined
	}
	return Rate{Value: num / den, Defined: true}
}

// Format renders the value with verb, or "undefined".
func (r Rate) Format(verb string) string {
	if !r.Defined {
		return "undefined"
	}
	return fmt.Sprintf(verb, r.Value)
}

// MarshalJSON encodes an undefined rate as null.
func (r Rate) MarshalJSON() ([]byte, error) {
	if !r.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(r.Value)
}

// MarshalYAML encodes an undefined rate as null.
func (r Rate) MarshalYAML() (interface{}, error) {
	if !r.Defined {
		return nil, nil
	}
	return r.Value, nil
}
