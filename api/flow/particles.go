package flow

import "sort"

const (
	// KindParticles identifies Particles objects.
	KindParticles = "particles"
	// KindAttributes identifies Attributes objects.
	KindAttributes = "attributes"
)

// Point3 is a position in simulation space.
type Point3 [3]float64

// Particles holds per-particle properties.  All slices have the same length.
type Particles struct {
	Identifiers []int64  `json:"identifiers"`
	Types       []int32  `json:"types"`
	Positions   []Point3 `json:"positions"`
}

// Kind implements DataObject.
func (p *Particles) Kind() string {
	return KindParticles
}

// Clone implements DataObject.
func (p *Particles) Clone() DataObject {
	return &Particles{
		Identifiers: append([]int64(nil), p.Identifiers...),
		Types:       append([]int32(nil), p.Types...),
		Positions:   append([]Point3(nil), p.Positions...),
	}
}

// Count returns the number of particles.
func (p *Particles) Count() int {
	return len(p.Positions)
}

// Filter keeps the particles for which keep returns true.
func (p *Particles) Filter(keep func(i int) bool) {
	n := 0
	for i := range p.Positions {
		if !keep(i) {
			continue
		}
		p.Positions[n] = p.Positions[i]
		if i < len(p.Identifiers) {
			p.Identifiers[n] = p.Identifiers[i]
		}
		if i < len(p.Types) {
			p.Types[n] = p.Types[i]
		}
		n++
	}
	p.Positions = p.Positions[:n]
	if len(p.Identifiers) > n {
		p.Identifiers = p.Identifiers[:n]
	}
	if len(p.Types) > n {
		p.Types = p.Types[:n]
	}
}

// Attributes holds named global values computed along the pipeline.
type Attributes struct {
	Values map[string]float64 `json:"values"`
}

// Kind implements DataObject.
func (a *Attributes) Kind() string {
	return KindAttributes
}

// Clone implements DataObject.
func (a *Attributes) Clone() DataObject {
	values := make(map[string]float64, len(a.Values))
	for k, v := range a.Values {
		values[k] = v
	}
	return &Attributes{Values: values}
}

// Names returns the attribute names in sorted order.
func (a *Attributes) Names() []string {
	names := make([]string, 0, len(a.Values))
	for k := range a.Values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// SetAttribute stores a global attribute in the state, creating the Attributes object
// if needed.
func (s *State) SetAttribute(name string, value float64) {
	obj, ok := s.MakeMutable(KindAttributes)
	if !ok {
		obj = &Attributes{Values: map[string]float64{}}
		s.AddObject(obj)
	}
	attrs := obj.(*Attributes)
	if attrs.Values == nil {
		attrs.Values = map[string]float64{}
	}
	attrs.Values[name] = value
}

// Attribute looks up a global attribute.
func (s State) Attribute(name string) (float64, bool) {
	obj, ok := s.data.Find(KindAttributes)
	if !ok {
		return 0, false
	}
	v, ok := obj.(*Attributes).Values[name]
	return v, ok
}
