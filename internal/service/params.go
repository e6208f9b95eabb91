package service

// ParamType is the semantic type of a declared parameter. It drives form
// rendering and validation in the external API layer; the engine itself only
// checks presence of required parameters.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
	ParamEmail   ParamType = "email"
	ParamURL     ParamType = "url"
	ParamSelect  ParamType = "select"
)

// Parameter defines one input an action or reaction accepts.
type Parameter struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description"`
	Required    bool      `json:"required"`
	Options     []string  `json:"options,omitempty"` // for ParamSelect
	Default     any       `json:"default_value,omitempty"`
}

// ActionDefinition describes a trigger check, without its executable part.
type ActionDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
}

// ReactionDefinition describes an effect, without its executable part.
type ReactionDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
}

// MissingRequired returns the names of required parameters that are absent
// from the provided map. Only key presence is checked.
func MissingRequired(defined []Parameter, provided Params) []string {
	var missing []string
	for _, p := range defined {
		if !p.Required {
			continue
		}
		if _, ok := provided[p.Name]; !ok {
			missing = append(missing, p.Name)
		}
	}
	return missing
}

// Params is an opaque parameter map as stored on a rule. Values come from
// JSON, so numbers are float64.
type Params map[string]any

func (p Params) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (p Params) Float64(key string) (float64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func (p Params) Int64(key string) (int64, bool) {
	f, ok := p.Float64(key)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

func (p Params) Bool(key string) (bool, bool) {
	v, ok := p[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Merge returns a copy of p with extra keys applied on top.
func (p Params) Merge(extra Params) Params {
	out := make(Params, len(p)+len(extra))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
