package tiled

import (
	"encoding/json"
	"fmt"
	"strconv"
)

const (
	// Property types
	// see doc.mapeditor.org/en/stable/reference/json-map-format/#property
	PropString = "string"
	PropInt    = "int"
	PropFloat  = "float"
	PropBool   = "bool"
	PropColor  = "color"
	PropFile   = "file"
	PropObject = "object"
	PropClass  = "class"
)

// Properties is a more straight forward []Property (used by the raw file formats)
// that handles types a bit more gracefully.
//
// Colors and files are kept as strings, object references as ints and
// class values as their raw JSON.
type Properties struct {
	ints    map[string]int
	floats  map[string]float64
	strings map[string]string
	bools   map[string]bool
}

// NewProperties returns an empty properties
func NewProperties() *Properties {
	return &Properties{
		ints:    map[string]int{},
		floats:  map[string]float64{},
		strings: map[string]string{},
		bools:   map[string]bool{},
	}
}

// Merge properties `o` into this properties
func (p *Properties) Merge(o *Properties) *Properties {
	if o == nil {
		return p
	}
	for k, v := range o.ints {
		p.SetInt(k, v)
	}
	for k, v := range o.floats {
		p.SetFloat(k, v)
	}
	for k, v := range o.strings {
		p.SetString(k, v)
	}
	for k, v := range o.bools {
		p.SetBool(k, v)
	}
	return p
}

// Copy returns a deep copy. Copying a nil properties gives an empty one.
func (p *Properties) Copy() *Properties {
	return NewProperties().Merge(p)
}

// Len is the number of set properties
func (p *Properties) Len() int {
	if p == nil {
		return 0
	}
	return len(p.ints) + len(p.floats) + len(p.strings) + len(p.bools)
}

// Map returns all values keyed by name.
func (p *Properties) Map() map[string]interface{} {
	out := map[string]interface{}{}
	if p == nil {
		return out
	}
	for k, v := range p.ints {
		out[k] = v
	}
	for k, v := range p.floats {
		out[k] = v
	}
	for k, v := range p.strings {
		out[k] = v
	}
	for k, v := range p.bools {
		out[k] = v
	}
	return out
}

// MarshalJSON writes properties as a flat object
func (p *Properties) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Map())
}

// jsonProperty is a property as written in Tiled JSON files
type jsonProperty struct {
	Name  string          `json:"name"`
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// newPropertiesFromJSON turns the JSON []Property into our nicer properties
// wrapper struct.
func newPropertiesFromJSON(in []jsonProperty) (*Properties, error) {
	ps := NewProperties()

	for _, i := range in {
		if i.Name == "" {
			return nil, &ParseError{Field: "properties.name", Err: fmt.Errorf("property without a name")}
		}

		var err error
		switch i.Type {
		case PropInt, PropObject:
			var v json.Number
			if err = json.Unmarshal(i.Value, &v); err == nil {
				var n int64
				n, err = v.Int64()
				ps.SetInt(i.Name, int(n))
			}
		case PropFloat:
			var v float64
			if err = json.Unmarshal(i.Value, &v); err == nil {
				ps.SetFloat(i.Name, v)
			}
		case PropBool:
			var v bool
			if err = json.Unmarshal(i.Value, &v); err == nil {
				ps.SetBool(i.Name, v)
			}
		case PropClass:
			ps.SetString(i.Name, string(i.Value))
		default:
			// string, color, file
			var v string
			if err = json.Unmarshal(i.Value, &v); err == nil {
				ps.SetString(i.Name, v)
			}
		}
		if err != nil {
			return nil, &ParseError{Field: "properties." + i.Name, Err: err}
		}
	}

	return ps, nil
}

// newPropertiesFromList turns the XML []Property into our properties wrapper.
func newPropertiesFromList(in []*xmlProperty) *Properties {
	ps := NewProperties()

	for _, i := range in {
		switch i.Type {
		case PropInt, PropObject:
			v, _ := strconv.ParseInt(i.Value, 10, 64)
			ps.SetInt(i.Name, int(v))
		case PropFloat:
			v, _ := strconv.ParseFloat(i.Value, 64)
			ps.SetFloat(i.Name, v)
		case PropBool:
			ps.SetBool(i.Name, i.Value == "true")
		default:
			ps.SetString(i.Name, i.Value)
		}
	}

	return ps
}

func (p *Properties) String(key string) (string, bool) {
	v, ok := p.strings[key]
	return v, ok
}

func (p *Properties) SetString(key, value string) {
	p.clear(key)
	p.strings[key] = value
}

func (p *Properties) Int(key string) (int, bool) {
	v, ok := p.ints[key]
	return v, ok
}

func (p *Properties) SetInt(key string, value int) {
	p.clear(key)
	p.ints[key] = value
}

func (p *Properties) Float(key string) (float64, bool) {
	v, ok := p.floats[key]
	return v, ok
}

func (p *Properties) SetFloat(key string, value float64) {
	p.clear(key)
	p.floats[key] = value
}

func (p *Properties) Bool(key string) (bool, bool) {
	v, ok := p.bools[key]
	return v, ok
}

func (p *Properties) SetBool(key string, value bool) {
	p.clear(key)
	p.bools[key] = value
}

// clear removes `key` whatever it's type
func (p *Properties) clear(key string) {
	delete(p.ints, key)
	delete(p.floats, key)
	delete(p.strings, key)
	delete(p.bools, key)
}
