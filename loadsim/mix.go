// Package loadsim drives synthetic tool-call traffic against a running
// service: a weighted operation mix, a closed-loop worker pool with
// latency percentiles, and an optional fixture recorder that scrubs
// responses before persisting them.
package loadsim

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
)

// Operation names accepted by the mix.
const (
	OpContentSingle = "content_single"
	OpContentCrawl  = "content_crawl"
	OpStructure     = "structure"
	OpNews          = "news"
	OpSessionRead   = "session_read"
	OpPing          = "ping"
)

var opNames = []string{
	OpContentSingle,
	OpContentCrawl,
	OpStructure,
	OpNews,
	OpSessionRead,
	OpPing,
}

func knownOp(name string) bool {
	for _, op := range opNames {
		if op == name {
			return true
		}
	}
	return false
}

// Mix is a normalized weighted distribution over operations. Zero-weight
// operations are dropped at construction.
type Mix struct {
	ops     []string
	weights []float64
	cum     []float64
}

// NewMix validates and normalizes a weight table.
func NewMix(weights map[string]float64) (*Mix, error) {
	total := 0.0
	for op, w := range weights {
		if !knownOp(op) {
			return nil, fmt.Errorf("unknown operation %q", op)
		}
		if w < 0 {
			return nil, fmt.Errorf("operation %q has negative weight", op)
		}
		total += w
	}
	if total <= 0 {
		return nil, errors.New("mix has no positive weights")
	}

	m := &Mix{}
	acc := 0.0
	for _, op := range opNames {
		w := weights[op]
		if w <= 0 {
			continue
		}
		norm := w / total
		acc += norm
		m.ops = append(m.ops, op)
		m.weights = append(m.weights, norm)
		m.cum = append(m.cum, acc)
	}
	return m, nil
}

// DefaultMix favors single-page retrieval with a sprinkle of everything.
func DefaultMix() *Mix {
	m, _ := NewMix(map[string]float64{
		OpContentSingle: 4,
		OpContentCrawl:  1,
		OpStructure:     2,
		OpNews:          1,
		OpSessionRead:   1,
		OpPing:          1,
	})
	return m
}

// ParseMix reads a "op=weight,op=weight" spec. An empty spec yields the
// default mix.
func ParseMix(spec string) (*Mix, error) {
	if strings.TrimSpace(spec) == "" {
		return DefaultMix(), nil
	}
	weights := make(map[string]float64)
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, found := strings.Cut(pair, "=")
		if !found {
			return nil, fmt.Errorf("mix entry %q is not op=weight", pair)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("mix entry %q: %w", pair, err)
		}
		weights[strings.TrimSpace(name)] = w
	}
	return NewMix(weights)
}

// Pick draws one operation according to the weights.
func (m *Mix) Pick(rng *rand.Rand) string {
	x := rng.Float64()
	for i, c := range m.cum {
		if x < c {
			return m.ops[i]
		}
	}
	return m.ops[len(m.ops)-1]
}

// Ops lists the active operations in stable order.
func (m *Mix) Ops() []string {
	return append([]string(nil), m.ops...)
}

// Weight returns the normalized weight of an operation, 0 if inactive.
func (m *Mix) Weight(op string) float64 {
	for i, name := range m.ops {
		if name == op {
			return m.weights[i]
		}
	}
	return 0
}
