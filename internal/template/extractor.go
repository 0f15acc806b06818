// Package template derives parameterized skeletons from sets of similar
// pattern instances: members are aligned by structural role, and
// identifiers that differ across instances become named placeholder slots.
package template

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dusk-indust/codegraph/internal/graph"
	"github.com/dusk-indust/codegraph/internal/pattern"
)

var (
	// ErrInsufficientInstances is returned when fewer instances than
	// minInstances are supplied.
	ErrInsufficientInstances = errors.New("insufficient pattern instances")

	// ErrIncompatibleShape is returned when instances disagree on member
	// kind cardinality beyond tolerance: structural shape, not literal
	// text, must match across instances.
	ErrIncompatibleShape = errors.New("incompatible pattern shapes")
)

// Slot is one placeholder: the identifier fragment that varies across
// instances. Values maps instance id to that instance's concrete value.
type Slot struct {
	Name   string            `json:"name"`
	Values map[string]string `json:"values"`
}

// Template is a parameterized skeleton. Each section is one aligned member
// role with differing identifier fragments replaced by {{slot}} markers.
type Template struct {
	PatternType       graph.PatternType `json:"patternType"`
	SkeletonBySection map[string]string `json:"skeletonBySection"`
	ParameterSlots    []Slot            `json:"parameterSlots"`
}

// repeatedKinds may differ in count by one across instances; every other
// kind must match exactly.
var repeatedKinds = map[graph.NodeKind]bool{
	graph.NodeKindMethod:      true,
	graph.NodeKindProperty:    true,
	graph.NodeKindPageControl: true,
}

// Extract aligns the given instances and derives a template. It fails with
// ErrInsufficientInstances for fewer than minInstances (floor 2) inputs and
// with ErrIncompatibleShape when the instances' structural shapes diverge.
func Extract(instances []pattern.Instance, minInstances int) (*Template, error) {
	if minInstances < 2 {
		minInstances = 2
	}
	if len(instances) < minInstances {
		return nil, fmt.Errorf("%w: got %d, need %d", ErrInsufficientInstances, len(instances), minInstances)
	}

	typ := instances[0].Type
	for _, inst := range instances[1:] {
		if inst.Type != typ {
			return nil, fmt.Errorf("%w: mixed pattern types %s and %s", ErrIncompatibleShape, typ, inst.Type)
		}
	}

	grouped, err := groupByKind(instances)
	if err != nil {
		return nil, err
	}

	tpl := &Template{
		PatternType:       typ,
		SkeletonBySection: make(map[string]string),
	}
	slots := newSlotTable(instances)

	kinds := make([]graph.NodeKind, 0, len(grouped))
	for kind := range grouped {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	for _, kind := range kinds {
		columns := grouped[kind]
		aligned := alignByRole(columns)

		// Only a repeated role within one kind needs an index suffix.
		baseCount := make(map[string]int, len(aligned))
		bases := make([]string, len(aligned))
		for i, tuple := range aligned {
			base := string(kind)
			if role := roleKey(tuple[0].Name); role != "" {
				base += ":" + role
			}
			bases[i] = base
			baseCount[base]++
		}
		seen := make(map[string]int, len(bases))
		for i, tuple := range aligned {
			section := bases[i]
			if baseCount[section] > 1 {
				seen[bases[i]]++
				section = fmt.Sprintf("%s#%d", section, seen[bases[i]])
			}
			tpl.SkeletonBySection[section] = slots.skeleton(tuple)
		}
	}

	tpl.ParameterSlots = slots.list()
	return tpl, nil
}

// groupByKind buckets each instance's members by kind and enforces the
// cardinality tolerance.
func groupByKind(instances []pattern.Instance) (map[graph.NodeKind][][]graph.Node, error) {
	grouped := make(map[graph.NodeKind][][]graph.Node)
	kindSet := make(map[graph.NodeKind]bool)
	perInstance := make([]map[graph.NodeKind][]graph.Node, len(instances))
	for i, inst := range instances {
		perInstance[i] = make(map[graph.NodeKind][]graph.Node)
		for _, n := range inst.Members {
			if n.Kind == graph.NodeKindFile {
				continue // file nodes carry no template shape
			}
			perInstance[i][n.Kind] = append(perInstance[i][n.Kind], n)
			kindSet[n.Kind] = true
		}
	}

	for kind := range kindSet {
		minCount, maxCount := -1, 0
		for i := range instances {
			c := len(perInstance[i][kind])
			if minCount < 0 || c < minCount {
				minCount = c
			}
			if c > maxCount {
				maxCount = c
			}
		}
		tolerance := 0
		if repeatedKinds[kind] {
			tolerance = 1
		}
		if maxCount-minCount > tolerance {
			return nil, fmt.Errorf("%w: %s count ranges %d..%d across instances",
				ErrIncompatibleShape, kind, minCount, maxCount)
		}
		columns := make([][]graph.Node, len(instances))
		for i := range instances {
			columns[i] = perInstance[i][kind]
		}
		grouped[kind] = columns
	}
	return grouped, nil
}

// alignByRole pairs corresponding members across instances: within a kind,
// members are bucketed by their structural role key (the role-verb portion
// of the name) and zipped bucket by bucket. Members whose role appears in
// only some instances stay unaligned and contribute no section. Alignment
// is by role, never by the full literal name.
func alignByRole(columns [][]graph.Node) [][]graph.Node {
	buckets := make([]map[string][]graph.Node, len(columns))
	for i, col := range columns {
		buckets[i] = make(map[string][]graph.Node)
		for _, n := range col {
			key := roleKey(n.Name)
			buckets[i][key] = append(buckets[i][key], n)
		}
		for _, b := range buckets[i] {
			sort.Slice(b, func(x, y int) bool { return b[x].Name < b[y].Name })
		}
	}

	var roles []string
	for key := range buckets[0] {
		shared := true
		for _, b := range buckets[1:] {
			if len(b[key]) == 0 {
				shared = false
				break
			}
		}
		if shared {
			roles = append(roles, key)
		}
	}
	sort.Strings(roles)

	var tuples [][]graph.Node
	for _, key := range roles {
		depth := len(buckets[0][key])
		for _, b := range buckets[1:] {
			if len(b[key]) < depth {
				depth = len(b[key])
			}
		}
		for i := 0; i < depth; i++ {
			tuple := make([]graph.Node, len(columns))
			for j := range columns {
				tuple[j] = buckets[j][key][i]
			}
			tuples = append(tuples, tuple)
		}
	}
	return tuples
}

// roleKey extracts the structural role tokens from an identifier, e.g.
// "GetCustomerById" -> "get.by.id".
func roleKey(name string) string {
	var roles []string
	for _, tok := range pattern.SplitIdentifier(name) {
		if isRoleToken(tok) {
			roles = append(roles, tok)
		}
	}
	return strings.Join(roles, ".")
}

// slotTable interns placeholder slots: the same cross-instance value tuple
// always maps to the same slot, so an entity name recurring through class,
// procedure and page names yields a single parameter.
type slotTable struct {
	instanceIDs []string
	byTuple     map[string]*Slot
	order       []*Slot
}

func newSlotTable(instances []pattern.Instance) *slotTable {
	ids := make([]string, len(instances))
	for i, inst := range instances {
		ids[i] = inst.ID
	}
	return &slotTable{
		instanceIDs: ids,
		byTuple:     make(map[string]*Slot),
	}
}

// skeleton diffs one aligned member tuple: token columns identical across
// all instances stay verbatim, differing columns become {{slot}} markers.
func (t *slotTable) skeleton(tuple []graph.Node) string {
	names := make([]string, len(tuple))
	for i, n := range tuple {
		names[i] = n.Name
	}

	tokenized := make([][]span, len(names))
	counts := -1
	uniform := true
	for i, name := range names {
		tokenized[i] = splitWithSpans(name)
		if counts < 0 {
			counts = len(tokenized[i])
		} else if counts != len(tokenized[i]) {
			uniform = false
		}
	}
	if !uniform {
		// Token structure itself differs: the whole name is one slot.
		return t.placeholder(names)
	}

	var sb strings.Builder
	base := names[0]
	prevEnd := 0
	for col := 0; col < counts; col++ {
		values := make([]string, len(names))
		same := true
		for i := range names {
			values[i] = tokenized[i][col].text
			if values[i] != values[0] {
				same = false
			}
		}
		sp := tokenized[0][col]
		sb.WriteString(base[prevEnd:sp.start])
		if same {
			sb.WriteString(sp.text)
		} else {
			sb.WriteString(t.placeholder(values))
		}
		prevEnd = sp.end
	}
	sb.WriteString(base[prevEnd:])
	return sb.String()
}

// placeholder returns the marker for a value tuple, creating the slot on
// first sight.
func (t *slotTable) placeholder(values []string) string {
	key := strings.Join(values, "\x00")
	if s, ok := t.byTuple[key]; ok {
		return "{{" + s.Name + "}}"
	}
	s := &Slot{
		Name:   fmt.Sprintf("param%d", len(t.order)+1),
		Values: make(map[string]string, len(values)),
	}
	for i, v := range values {
		s.Values[t.instanceIDs[i]] = v
	}
	t.byTuple[key] = s
	t.order = append(t.order, s)
	return "{{" + s.Name + "}}"
}

func (t *slotTable) list() []Slot {
	out := make([]Slot, len(t.order))
	for i, s := range t.order {
		out[i] = *s
	}
	return out
}

// span is one identifier token with its byte range in the original string.
type span struct {
	text       string
	start, end int
}

// splitWithSpans mirrors pattern.SplitIdentifier but keeps original casing
// and byte offsets so skeletons preserve the source spelling. Identifiers
// are byte-oriented: boundaries only involve ASCII.
func splitWithSpans(name string) []span {
	var spans []span
	start := -1
	flush := func(end int) {
		if start >= 0 {
			spans = append(spans, span{text: name[start:end], start: start, end: end})
			start = -1
		}
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '_' || c == '.' || c == '-' || c == ' ':
			flush(i)
		case i > 0 && isUpper(c) && !isUpper(name[i-1]):
			flush(i)
			start = i
		case i > 0 && isUpper(c) && i+1 < len(name) && !isUpper(name[i+1]) && isUpper(name[i-1]):
			flush(i)
			start = i
		default:
			if start < 0 {
				start = i
			}
		}
	}
	flush(len(name))
	return spans
}

func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }

func isRoleToken(tok string) bool {
	switch tok {
	case "get", "save", "delete", "update", "insert", "load", "list", "find",
		"create", "add", "remove", "select", "all", "by", "id",
		"manager", "page", "sp", "usp", "validate", "check", "verify":
		return true
	}
	return false
}
