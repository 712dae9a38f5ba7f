package models

// JSONSchema declares the required and optional shape of a node's config.
// It is validated against the config map at every trust boundary: import,
// template publish, and execution submit.
type JSONSchema struct {
	Type        string               `json:"type"`
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
}

// Property is one property declaration within a JSONSchema.
type Property struct {
	Type        string               `json:"type"`
	Description string               `json:"description,omitempty"`
	Enum        []any                `json:"enum,omitempty"`
	Default     any                  `json:"default,omitempty"`
	Format      string               `json:"format,omitempty"`
	Pattern     string               `json:"pattern,omitempty"`
	MinLength   *int                 `json:"minLength,omitempty"`
	MaxLength   *int                 `json:"maxLength,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
}

// Clone returns a deep copy of the schema.
func (s *JSONSchema) Clone() *JSONSchema {
	if s == nil {
		return nil
	}

	clone := *s
	clone.Properties = cloneProperties(s.Properties)
	clone.Required = append([]string(nil), s.Required...)

	return &clone
}

func cloneProperties(props map[string]*Property) map[string]*Property {
	if props == nil {
		return nil
	}

	out := make(map[string]*Property, len(props))
	for name, prop := range props {
		out[name] = prop.clone()
	}

	return out
}

func (p *Property) clone() *Property {
	if p == nil {
		return nil
	}

	clone := *p
	clone.Enum = append([]any(nil), p.Enum...)
	clone.Required = append([]string(nil), p.Required...)
	clone.Items = p.Items.clone()
	clone.Properties = cloneProperties(p.Properties)

	if p.MinLength != nil {
		minLength := *p.MinLength
		clone.MinLength = &minLength
	}

	if p.MaxLength != nil {
		maxLength := *p.MaxLength
		clone.MaxLength = &maxLength
	}

	return &clone
}
