package flow

import "sync/atomic"

// DataObject is a typed piece of simulation data stored in a Collection.
type DataObject interface {
	// Kind identifies the object within its collection.
	Kind() string
	// Clone returns an independent copy of the object.
	Clone() DataObject
}

// objectSlot is a reference-counted handle on a data object.  An object whose slot is
// referenced by more than one collection must not be modified in place.
type objectSlot struct {
	obj  DataObject
	refs atomic.Int32
}

func newObjectSlot(obj DataObject) *objectSlot {
	s := &objectSlot{obj: obj}
	s.refs.Store(1)
	return s
}

// Collection is a reference-counted list of data objects.  A collection referenced by more
// than one State is shared and must be duplicated before it is changed.
type Collection struct {
	refs  atomic.Int32
	slots []*objectSlot
}

// NewCollection creates an exclusively owned collection holding the given objects.
func NewCollection(objects ...DataObject) *Collection {
	c := &Collection{slots: make([]*objectSlot, 0, len(objects))}
	c.refs.Store(1)
	for _, obj := range objects {
		c.slots = append(c.slots, newObjectSlot(obj))
	}
	return c
}

// Retain registers an additional owner of the collection and returns it.
func (c *Collection) Retain() *Collection {
	if c != nil {
		c.refs.Add(1)
	}
	return c
}

func (c *Collection) release() {
	if c == nil {
		return
	}
	if c.refs.Add(-1) == 0 {
		for _, s := range c.slots {
			s.refs.Add(-1)
		}
	}
}

func (c *Collection) shared() bool {
	return c.refs.Load() > 1
}

// duplicate returns a new exclusively owned collection that references the same objects.
func (c *Collection) duplicate() *Collection {
	dup := &Collection{slots: make([]*objectSlot, len(c.slots))}
	dup.refs.Store(1)
	for i, s := range c.slots {
		s.refs.Add(1)
		dup.slots[i] = s
	}
	return dup
}

// Len returns the number of objects.  A nil collection is empty.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.slots)
}

// Object returns the i-th object.
func (c *Collection) Object(i int) DataObject {
	return c.slots[i].obj
}

// Objects returns the objects in insertion order.
func (c *Collection) Objects() []DataObject {
	if c == nil {
		return nil
	}
	objects := make([]DataObject, len(c.slots))
	for i, s := range c.slots {
		objects[i] = s.obj
	}
	return objects
}

// Find returns the first object of the given kind.
func (c *Collection) Find(kind string) (DataObject, bool) {
	if i := c.indexOf(kind); i >= 0 {
		return c.slots[i].obj, true
	}
	return nil, false
}

func (c *Collection) indexOf(kind string) int {
	if c == nil {
		return -1
	}
	for i, s := range c.slots {
		if s.obj.Kind() == kind {
			return i
		}
	}
	return -1
}

func (c *Collection) add(obj DataObject) {
	c.slots = append(c.slots, newObjectSlot(obj))
}

func (c *Collection) remove(i int) {
	c.slots[i].refs.Add(-1)
	c.slots = append(c.slots[:i], c.slots[i+1:]...)
}

// makeMutable replaces the i-th object by a private copy if it is shared, or
// unconditionally when force is set.  It reports whether a copy was made.
func (c *Collection) makeMutable(i int, force bool) bool {
	s := c.slots[i]
	if !force && s.refs.Load() <= 1 {
		return false
	}
	c.slots[i] = newObjectSlot(s.obj.Clone())
	s.refs.Add(-1)
	return true
}
