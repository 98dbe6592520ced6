package dao

// Parameter narrows List results; backends ignore parameters they do not know.
type Parameter struct {
	Name  string
	Value interface{}
}

// NewParameter creates a parameter holding a single value or a value list.
func NewParameter(name string, values ...string) *Parameter {
	if len(values) == 1 {
		return &Parameter{Name: name, Value: values[0]}
	}
	return &Parameter{Name: name, Value: values}
}

// Match reports whether actual satisfies the named parameter. Absent
// parameters match everything.
func Match(name, actual string, parameters []*Parameter) bool {
	for _, parameter := range parameters {
		if parameter == nil || parameter.Name != name {
			continue
		}
		switch expected := parameter.Value.(type) {
		case string:
			return actual == expected
		case []string:
			for _, candidate := range expected {
				if candidate == actual {
					return true
				}
			}
			return false
		}
	}
	return true
}
