package trace

import (
	"fmt"
	"math"
	"strconv"

	"github.com/rs/zerolog"
)

// Raw value sentinels emitted by the injected recorder. Exported goja values
// lose the null/undefined distinction and object identity, so the recorder
// encodes undefined and heap references as single-key marker objects.
const (
	rawUndefKey = "@undef"
	rawRefKey   = "@ref"
)

// Display tokens for reference-valued variables. The heap object carries the
// real contents; the variable only shows what it points at.
const (
	displayArray    = "[Array]"
	displayObject   = "[Object]"
	displayFunction = "[Function]"
)

// Normalize converts raw engine snapshots into the step model. Snapshots
// missing required fields are skipped with a warning rather than aborting
// the run; a partial trace beats no trace. The result carries no diff flags
// yet; Enhance computes those.
func Normalize(raw []any, logger zerolog.Logger) []Step {
	steps := make([]Step, 0, len(raw))
	for i, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			logger.Warn().Int("snapshot", i).Msg("skipping malformed snapshot: not an object")
			continue
		}
		step, err := normalizeSnapshot(m)
		if err != nil {
			logger.Warn().Int("snapshot", i).Err(err).Msg("skipping malformed snapshot")
			continue
		}
		step.Index = len(steps)
		checkReferences(&step, logger)
		steps = append(steps, step)
	}
	return steps
}

func normalizeSnapshot(m map[string]any) (Step, error) {
	line, ok := asInt(m["line"])
	if !ok {
		return Step{}, fmt.Errorf("missing line field")
	}
	rawFrames, ok := m["frames"].([]any)
	if !ok {
		return Step{}, fmt.Errorf("missing frames field")
	}

	heap, kinds := normalizeHeap(m["heap"])

	frames := make([]Frame, 0, len(rawFrames))
	for i, rf := range rawFrames {
		fm, ok := rf.(map[string]any)
		if !ok {
			return Step{}, fmt.Errorf("frame %d is not an object", i)
		}
		frame := Frame{
			Name:   asString(fm["name"]),
			Global: fm["global"] == true,
			Active: i == len(rawFrames)-1,
		}
		if n, ok := asInt(fm["line"]); ok {
			frame.Line = n
		}
		if vars, ok := fm["vars"].([]any); ok {
			frame.Vars = normalizePairs(vars, kinds)
		}
		frames = append(frames, frame)
	}

	active := len(frames) - 1
	step := Step{
		Line:        line,
		Frames:      frames,
		Heap:        heap,
		ActiveFrame: active,
		Output:      normalizeOutput(m["output"]),
	}
	step.Explanation = explain(&step)
	return step, nil
}

// normalizeHeap maps the raw heap table into HeapObject records, returning
// the identifier-to-kind index needed to classify reference values.
func normalizeHeap(raw any) ([]HeapObject, map[string]Kind) {
	entries, _ := raw.([]any)
	kinds := make(map[string]Kind, len(entries))
	objs := make([]HeapObject, 0, len(entries))

	// Two passes: kinds must be complete before member references are
	// classified, since members may point forward in the table.
	type parsed struct {
		id      string
		kind    Kind
		members []any
	}
	var ps []parsed
	for _, e := range entries {
		pair, ok := e.([]any)
		if !ok || len(pair) != 2 {
			continue
		}
		id := asString(pair[0])
		body, ok := pair[1].(map[string]any)
		if id == "" || !ok {
			continue
		}
		kind := heapKind(asString(body["kind"]))
		members, _ := body["members"].([]any)
		kinds[id] = kind
		ps = append(ps, parsed{id: id, kind: kind, members: members})
	}
	for _, p := range ps {
		objs = append(objs, HeapObject{
			ID:    p.id,
			Kind:  p.kind,
			Props: normalizePairs(p.members, kinds),
		})
	}
	return objs, kinds
}

// normalizePairs converts a raw [name, value] pair list into Variables,
// preserving declaration order.
func normalizePairs(pairs []any, kinds map[string]Kind) []Variable {
	vars := make([]Variable, 0, len(pairs))
	for _, p := range pairs {
		pair, ok := p.([]any)
		if !ok || len(pair) != 2 {
			continue
		}
		v := classify(pair[1], kinds)
		v.Name = asString(pair[0])
		vars = append(vars, v)
	}
	return vars
}

// classify is the single type-inspection dispatch over raw engine values.
// Everything downstream matches on the resulting Kind, never on raw values.
func classify(raw any, kinds map[string]Kind) Variable {
	switch v := raw.(type) {
	case nil:
		return Variable{Kind: KindNull, Value: "null"}
	case bool:
		return Variable{Kind: KindBoolean, Value: strconv.FormatBool(v)}
	case string:
		return Variable{Kind: KindString, Value: strconv.Quote(v)}
	case int:
		return Variable{Kind: KindNumber, Value: strconv.Itoa(v)}
	case int64:
		return Variable{Kind: KindNumber, Value: strconv.FormatInt(v, 10)}
	case float64:
		return Variable{Kind: KindNumber, Value: formatNumber(v)}
	case map[string]any:
		if v[rawUndefKey] == true {
			return Variable{Kind: KindUndefined, Value: "undefined"}
		}
		if id := asString(v[rawRefKey]); id != "" {
			kind, ok := kinds[id]
			if !ok {
				kind = KindObject
			}
			return Variable{Kind: kind, Value: displayFor(kind), Ref: id}
		}
	}
	// Whatever the engine handed us, render it rather than lose it.
	return Variable{Kind: KindObject, Value: fmt.Sprint(raw)}
}

// formatNumber renders integral numbers without a decimal point and all
// others in their natural decimal form.
func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func displayFor(kind Kind) string {
	switch kind {
	case KindArray:
		return displayArray
	case KindFunction:
		return displayFunction
	default:
		return displayObject
	}
}

func heapKind(s string) Kind {
	switch s {
	case "array":
		return KindArray
	case "function":
		return KindFunction
	default:
		return KindObject
	}
}

func normalizeOutput(raw any) []string {
	entries, _ := raw.([]any)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, asString(e))
	}
	return out
}

// checkReferences verifies that every reference resolves within the same
// step's heap list. A dangling reference indicates a recorder defect, not a
// valid trace state, so it is logged loudly but the step is kept.
func checkReferences(step *Step, logger zerolog.Logger) {
	seen := make(map[string]bool, len(step.Heap))
	for _, obj := range step.Heap {
		seen[obj.ID] = true
	}
	check := func(where string, vars []Variable) {
		for _, v := range vars {
			if v.Ref != "" && !seen[v.Ref] {
				logger.Error().
					Int("step", step.Index).
					Str("where", where).
					Str("variable", v.Name).
					Str("ref", v.Ref).
					Msg("dangling heap reference")
			}
		}
	}
	for _, f := range step.Frames {
		check(f.Name, f.Vars)
	}
	for _, obj := range step.Heap {
		check(obj.ID, obj.Props)
	}
}

func explain(step *Step) string {
	if active, ok := step.Active(); ok && !active.Global {
		return fmt.Sprintf("Runs line %d in %s", step.Line, active.Name)
	}
	return fmt.Sprintf("Runs line %d", step.Line)
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
