// Package trace defines the engine-independent step model produced by one
// run of an instrumented program, along with the normalizer that builds it
// from raw engine snapshots and the differ that flags new/modified state.
package trace

// Kind classifies a recorded value into the closed set of type tags the
// rest of the system pattern-matches on. Raw engine values are inspected
// exactly once, at the normalizer boundary.
type Kind string

const (
	KindNumber    Kind = "number"
	KindString    Kind = "string"
	KindBoolean   Kind = "boolean"
	KindNull      Kind = "null"
	KindUndefined Kind = "undefined"
	KindArray     Kind = "array"
	KindObject    Kind = "object"
	KindFunction  Kind = "function"
)

// Variable is one binding in a frame (or one property of a heap object) at
// a single step. Ref, when non-empty, is a weak pointer to a HeapObject in
// the same step's heap list; it is used for lookup only and never implies
// ownership.
type Variable struct {
	Name       string `json:"name"`
	Value      string `json:"value"`
	Kind       Kind   `json:"kind"`
	IsNew      bool   `json:"isNew"`
	IsModified bool   `json:"isModified"`
	Ref        string `json:"ref,omitempty"`
}

// Frame is one call-stack entry. The global frame is always first; a frame
// simply stops appearing in later steps once its call returns.
type Frame struct {
	Name   string     `json:"name"`
	Global bool       `json:"global"`
	Line   int        `json:"line"`
	Vars   []Variable `json:"vars"`
	Active bool       `json:"active"`
}

// HeapObject is a recorded non-primitive value. The identifier is stable
// for the object's lifetime within a trace; a mutated object shows up as a
// new HeapObject value under the same identifier in a later step.
type HeapObject struct {
	ID    string     `json:"id"`
	Kind  Kind       `json:"kind"`
	Props []Variable `json:"props"`
}

// Step is one recorded snapshot of program state, corresponding to one
// executed source line. Steps are immutable once produced; Enhance returns
// a new sequence rather than mutating in place.
type Step struct {
	Index       int          `json:"index"`
	Line        int          `json:"line"`
	Frames      []Frame      `json:"frames"`
	Heap        []HeapObject `json:"heap"`
	ActiveFrame int          `json:"activeFrame"`
	Output      []string     `json:"output"`
	Explanation string       `json:"explanation"`
	IsError     bool         `json:"isError"`
	ErrorMsg    string       `json:"errorMsg,omitempty"`
}

// HeapByID returns the heap object with the given identifier, if present in
// this step's heap list.
func (s *Step) HeapByID(id string) (HeapObject, bool) {
	for _, obj := range s.Heap {
		if obj.ID == id {
			return obj, true
		}
	}
	return HeapObject{}, false
}

// Active returns the currently active frame, or false when the frame list
// is empty.
func (s *Step) Active() (Frame, bool) {
	if s.ActiveFrame < 0 || s.ActiveFrame >= len(s.Frames) {
		return Frame{}, false
	}
	return s.Frames[s.ActiveFrame], true
}

// Lookup returns the named variable within a frame.
func (f *Frame) Lookup(name string) (Variable, bool) {
	for _, v := range f.Vars {
		if v.Name == name {
			return v, true
		}
	}
	return Variable{}, false
}
