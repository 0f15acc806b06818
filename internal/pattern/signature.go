// Package pattern groups graph nodes into recurring structural clusters and
// scores their pairwise similarity. Patterns are derived data: they are
// recomputed from store snapshots and cached per store version, never
// persisted as ground truth.
package pattern

import (
	"hash/fnv"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/dusk-indust/codegraph/internal/graph"
)

// Signature vector layout: one slot per node kind, one per edge kind, then
// a fixed number of hashed name-token trigram buckets. Each section is
// normalized independently so member counts, edge shape and naming each
// contribute comparable weight.
const (
	nameBuckets = 16
	// SignatureLen is the fixed length of every signature vector.
	SignatureLen = 9 + 6 + nameBuckets
)

// roleTokens are structural naming roles (verbs and suffixes) stripped
// before n-gram comparison, so that GetCustomer and GetProduct differ only
// by their entity noun.
var roleTokens = map[string]bool{
	"get": true, "save": true, "delete": true, "update": true, "insert": true,
	"load": true, "list": true, "find": true, "create": true, "add": true,
	"remove": true, "select": true, "all": true, "by": true, "id": true,
	"manager": true, "page": true, "sp": true, "usp": true,
}

// Signature computes the fixed-length feature vector for a set of members
// and the edges among them. It is a pure function of its inputs: members are
// processed in sorted id order, so recomputation is bit-identical.
func Signature(members []graph.Node, edges []graph.Edge) []float64 {
	sorted := make([]graph.Node, len(members))
	copy(sorted, members)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	vec := make([]float64, SignatureLen)

	kindIdx := make(map[graph.NodeKind]int, len(graph.NodeKinds))
	for i, k := range graph.NodeKinds {
		kindIdx[k] = i
	}
	for _, n := range sorted {
		vec[kindIdx[n.Kind]]++
	}
	normalize(vec[:9])

	edgeIdx := make(map[graph.EdgeKind]int, len(graph.EdgeKinds))
	for i, k := range graph.EdgeKinds {
		edgeIdx[k] = 9 + i
	}
	for _, e := range edges {
		vec[edgeIdx[e.Kind]]++
	}
	normalize(vec[9:15])

	nameVec := vec[15:]
	for _, n := range sorted {
		for _, tok := range entityTokens(n.Name) {
			for _, tri := range trigrams(tok) {
				h := fnv.New32a()
				h.Write([]byte(tri))
				nameVec[h.Sum32()%nameBuckets]++
			}
		}
	}
	normalize(nameVec)

	return vec
}

// Similarity is the cosine similarity of two signature vectors. It is
// symmetric and Similarity(v, v) == 1 for any vector.
func Similarity(a, b []float64) float64 {
	if slices.Equal(a, b) {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 && nb == 0 {
		return 1
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func normalize(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x
	}
	if sum == 0 {
		return
	}
	for i := range v {
		v[i] /= sum
	}
}

// entityTokens splits an identifier on case and separator boundaries and
// drops structural role tokens, keeping the entity nouns.
func entityTokens(name string) []string {
	var out []string
	for _, tok := range SplitIdentifier(name) {
		if !roleTokens[tok] {
			out = append(out, tok)
		}
	}
	return out
}

// SplitIdentifier breaks CamelCase, snake_case and dotted identifiers into
// lowercase tokens.
func SplitIdentifier(name string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, strings.ToLower(cur.String()))
			cur.Reset()
		}
	}
	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '_' || r == '.' || r == '-' || r == ' ':
			flush()
		case i > 0 && isUpper(r) && !isUpper(runes[i-1]):
			flush()
			cur.WriteRune(r)
		case i > 0 && isUpper(r) && i+1 < len(runes) && !isUpper(runes[i+1]) && isUpper(runes[i-1]):
			// acronym boundary: "XMLParser" -> "xml", "parser"
			flush()
			cur.WriteRune(r)
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

func isUpper(r rune) bool { return r >= 'A' && r <= 'Z' }

func trigrams(tok string) []string {
	if len(tok) <= 3 {
		return []string{tok}
	}
	out := make([]string, 0, len(tok)-2)
	for i := 0; i+3 <= len(tok); i++ {
		out = append(out, tok[i:i+3])
	}
	return out
}
