package trace

import (
	"fmt"
	"strings"
)

// Enhance computes the isNew/isModified flags for every variable by
// comparing each step against its predecessor. It is a pure function: the
// input sequence is never mutated and a fresh sequence is returned.
//
// Frames are matched by name, not by position. When a name occurs more than
// once (recursive calls), occurrences are paired up in stack order, each
// previous frame consumed at most once.
func Enhance(steps []Step) []Step {
	out := make([]Step, len(steps))
	for i := range steps {
		cur := cloneStep(steps[i])
		if i > 0 {
			prev := &steps[i-1]
			diffFrames(&cur, prev)
			diffHeap(&cur, prev)
			annotate(&cur, prev)
		}
		out[i] = cur
	}
	return out
}

func diffFrames(cur, prev *Step) {
	consumed := make([]bool, len(prev.Frames))
	for fi := range cur.Frames {
		frame := &cur.Frames[fi]
		match := -1
		for pi := range prev.Frames {
			if !consumed[pi] && prev.Frames[pi].Name == frame.Name {
				match = pi
				consumed[pi] = true
				break
			}
		}
		if match < 0 {
			// Newly entered call: everything in it is new.
			for vi := range frame.Vars {
				frame.Vars[vi].IsNew = true
			}
			continue
		}
		diffVars(frame.Vars, prev.Frames[match].Vars)
	}
}

// diffHeap flags property changes on heap objects, matched by identifier.
func diffHeap(cur, prev *Step) {
	prevByID := make(map[string]*HeapObject, len(prev.Heap))
	for i := range prev.Heap {
		prevByID[prev.Heap[i].ID] = &prev.Heap[i]
	}
	for i := range cur.Heap {
		obj := &cur.Heap[i]
		before, ok := prevByID[obj.ID]
		if !ok {
			for pi := range obj.Props {
				obj.Props[pi].IsNew = true
			}
			continue
		}
		diffVars(obj.Props, before.Props)
	}
}

func diffVars(cur, prev []Variable) {
	for i := range cur {
		before, ok := lookupVar(prev, cur[i].Name)
		switch {
		case !ok:
			cur[i].IsNew = true
		case before.Value != cur[i].Value:
			cur[i].IsModified = true
		}
	}
}

func lookupVar(vars []Variable, name string) (Variable, bool) {
	for _, v := range vars {
		if v.Name == name {
			return v, true
		}
	}
	return Variable{}, false
}

// annotate extends the step explanation with what changed since the
// previous step: declared variables, updated values, and printed output.
func annotate(cur, prev *Step) {
	var notes []string
	if active, ok := cur.Active(); ok {
		for _, v := range active.Vars {
			switch {
			case v.IsNew:
				notes = append(notes, fmt.Sprintf("declares %s = %s", v.Name, v.Value))
			case v.IsModified:
				notes = append(notes, fmt.Sprintf("updates %s to %s", v.Name, v.Value))
			}
		}
	}
	if len(cur.Output) > len(prev.Output) {
		for _, line := range cur.Output[len(prev.Output):] {
			notes = append(notes, fmt.Sprintf("prints %q", line))
		}
	}
	if len(notes) > 0 {
		cur.Explanation += "; " + strings.Join(notes, "; ")
	}
}

func cloneStep(s Step) Step {
	out := s
	out.Frames = make([]Frame, len(s.Frames))
	for i, f := range s.Frames {
		nf := f
		nf.Vars = append([]Variable(nil), f.Vars...)
		out.Frames[i] = nf
	}
	out.Heap = make([]HeapObject, len(s.Heap))
	for i, obj := range s.Heap {
		no := obj
		no.Props = append([]Variable(nil), obj.Props...)
		out.Heap[i] = no
	}
	out.Output = append([]string(nil), s.Output...)
	return out
}
