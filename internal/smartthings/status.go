// Package smartthings fetches appliance status documents from the
// SmartThings cloud REST API.
package smartthings

import "encoding/json"

// Attribute is a single capability attribute as reported by the API. Only
// the value is consumed; unit and timestamp fields are ignored.
type Attribute struct {
	Value any `json:"value"`
}

// Capability maps attribute names to their reported values.
type Capability map[string]Attribute

// Component maps capability identifiers (including namespaced ones such as
// "samsungce.washerOperatingState") to their attributes.
type Component map[string]Capability

// StatusDocument is the parsed response of the device /status endpoint. The
// document is treated as partially present: any missing level simply yields
// an absent attribute.
type StatusDocument struct {
	Components map[string]Component `json:"components"`
}

// ParseStatus decodes a raw status payload.
func ParseStatus(raw []byte) (*StatusDocument, error) {
	var doc StatusDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Attribute resolves components.<component>.<capability>.<attribute>.value.
// The boolean is false when any level of the path is absent or the value is
// JSON null.
func (d *StatusDocument) Attribute(component, capability, attribute string) (any, bool) {
	if d == nil {
		return nil, false
	}
	comp, ok := d.Components[component]
	if !ok {
		return nil, false
	}
	capa, ok := comp[capability]
	if !ok {
		return nil, false
	}
	attr, ok := capa[attribute]
	if !ok || attr.Value == nil {
		return nil, false
	}
	return attr.Value, true
}
