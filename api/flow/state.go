package flow

import (
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/anim"
)

// State is the unit of data flowing down a pipeline: a data collection snapshot, the
// evaluation status and the time interval over which the snapshot stays valid.
//
// Copies made with Share reference the same collection.  Before changing the data a
// stage must go through MutableData, MakeMutable or CloneObjectsIfNeeded, which split
// the collection off from any other state still referencing it.  Plain value copies of
// a State do not register as owners and must not be mutated.
type State struct {
	data     *Collection
	status   Status
	validity anim.TimeInterval
}

// NewState wraps an owned collection.  The state takes over the caller's reference.
func NewState(data *Collection, status Status, validity anim.TimeInterval) State {
	return State{data: data, status: status, validity: validity}
}

// Share returns a copy of the state that references the same data collection.
func (s *State) Share() State {
	return State{data: s.data.Retain(), status: s.status, validity: s.validity}
}

// Assign makes the state a shared copy of other, dropping its previous data.
func (s *State) Assign(other State) {
	data := other.data.Retain()
	s.data.release()
	s.data = data
	s.status = other.status
	s.validity = other.validity
}

// Reset discards the data and leaves an empty state with an empty validity interval.
func (s *State) Reset() {
	s.data.release()
	s.data = nil
	s.status = Status{}
	s.validity = anim.Empty()
}

// HasData reports whether the state carries a data collection.
func (s State) HasData() bool {
	return s.data != nil
}

// Data returns the collection for reading.  It may be nil.
func (s State) Data() *Collection {
	return s.data
}

// Status returns the evaluation status.
func (s State) Status() Status {
	return s.status
}

// SetStatus replaces the evaluation status.
func (s *State) SetStatus(status Status) {
	s.status = status
}

// Validity returns the interval over which the state is valid.
func (s State) Validity() anim.TimeInterval {
	return s.validity
}

// SetValidity replaces the validity interval.
func (s *State) SetValidity(validity anim.TimeInterval) {
	s.validity = validity
}

// IntersectValidity reduces the validity interval to its overlap with iv.
func (s *State) IntersectValidity(iv anim.TimeInterval) {
	s.validity = s.validity.Intersect(iv)
}

// MutableData returns the collection after making sure no other state references it.
// Objects inside the collection may still be shared; use MakeMutable before changing
// one of them.
func (s *State) MutableData() *Collection {
	switch {
	case s.data == nil:
		s.data = NewCollection()
	case s.data.shared():
		dup := s.data.duplicate()
		s.data.release()
		s.data = dup
	}
	return s.data
}

// MakeMutable returns a private copy of the object of the given kind that is safe to
// modify in place.
func (s *State) MakeMutable(kind string) (DataObject, bool) {
	i := s.data.indexOf(kind)
	if i < 0 {
		return nil, false
	}
	data := s.MutableData()
	data.makeMutable(i, false)
	return data.slots[i].obj, true
}

// AddObject appends an object to the state's collection.
func (s *State) AddObject(obj DataObject) {
	s.MutableData().add(obj)
}

// RemoveObject removes the first object of the given kind.
func (s *State) RemoveObject(kind string) bool {
	if s.data.indexOf(kind) < 0 {
		return false
	}
	data := s.MutableData()
	data.remove(data.indexOf(kind))
	return true
}

// CloneObjectsIfNeeded makes the collection and its objects private to this state.  With
// deepCopy false only the parts that are actually shared are duplicated, so calling it a
// second time is a no-op.  With deepCopy true every object is duplicated.
func (s *State) CloneObjectsIfNeeded(deepCopy bool) {
	if s.data == nil {
		return
	}
	data := s.MutableData()
	for i := range data.slots {
		data.makeMutable(i, deepCopy)
	}
}
