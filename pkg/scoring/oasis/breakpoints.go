package oasis

import "github.com/synaptica-ai/comorbidity/pkg/common/models"

type side int

const (
	sideMin side = iota
	sideMax
)

type op int

const (
	opLT op = iota
	opLE
	opGT
	opGE
)

type cond struct {
	side  side
	op    op
	value float64
}

func (c cond) holds(lo, hi float64) bool {
	v := lo
	if c.side == sideMax {
		v = hi
	}
	switch c.op {
	case opLT:
		return v < c.value
	case opLE:
		return v <= c.value
	case opGT:
		return v > c.value
	default:
		return v >= c.value
	}
}

// breakpoint awards points when all of its conditions hold. An empty
// condition list always matches.
type breakpoint struct {
	when   []cond
	points int
}

// table is evaluated first match wins; no match scores 0.
type table []breakpoint

func (t table) eval(lo, hi float64) int {
	for _, b := range t {
		matched := true
		for _, c := range b.when {
			if !c.holds(lo, hi) {
				matched = false
				break
			}
		}
		if matched {
			return b.points
		}
	}
	return 0
}

func minLT(v float64) cond { return cond{sideMin, opLT, v} }
func minLE(v float64) cond { return cond{sideMin, opLE, v} }
func minGT(v float64) cond { return cond{sideMin, opGT, v} }
func minGE(v float64) cond { return cond{sideMin, opGE, v} }
func maxLE(v float64) cond { return cond{sideMax, opLE, v} }
func maxGT(v float64) cond { return cond{sideMax, opGT, v} }
func maxGE(v float64) cond { return cond{sideMax, opGE, v} }

func rule(points int, when ...cond) breakpoint { return breakpoint{when: when, points: points} }

// Scalar tables read the value through the min side.
var (
	ageTable = table{
		rule(0, minLT(24)),
		rule(3, minLE(53)),
		rule(6, minLE(77)),
		rule(9, minLE(89)),
		rule(7, minGE(90)),
	}
	// U-shaped: very short pre-ICU stays score higher than a day or so.
	preICULOSTable = table{
		rule(5, minLT(10.2)),
		rule(3, minLT(297)),
		rule(0, minLT(1440)),
		rule(2, minLT(18708)),
		rule(1),
	}
	gcsTable = table{
		rule(10, minLE(7)),
		rule(4, minLT(14)),
		rule(3, minGE(14), minLE(14)),
	}
	urineOutputTable = table{
		rule(10, minLT(671.09)),
		rule(8, minGT(6896.80)),
		rule(5, minGE(671.09), minLE(1426.99)),
		rule(1, minGE(1427.00), minLE(2544.14)),
	}

	heartRateTable = table{
		rule(6, maxGT(125)),
		rule(4, minLT(33)),
		rule(3, maxGE(107), maxLE(125)),
		rule(1, maxGE(89), maxLE(106)),
	}
	meanBPTable = table{
		rule(4, minLT(20.65)),
		rule(3, minLT(51)),
		rule(3, maxGT(143.44)),
		rule(2, minGE(51), minLT(61.33)),
	}
	respRateTable = table{
		rule(10, minLT(6)),
		rule(9, maxGT(44)),
		rule(6, maxGT(30)),
		rule(1, maxGT(22)),
		rule(1, minLT(13)),
	}
	tempTable = table{
		rule(6, maxGT(39.88)),
		rule(4, minGE(33.22), minLE(35.93)),
		rule(4, maxGE(33.22), maxLE(35.93)),
		rule(3, minLT(33.22)),
		rule(2, minGT(35.93), minLE(36.39)),
		rule(2, maxGE(36.89), maxLE(39.88)),
	}
)

func scoreScalar(t table, v *float64) (int, bool) {
	if v == nil {
		return 0, false
	}
	return t.eval(*v, *v), true
}

// scoreRange scores a min/max pair. A single observed side stands in for
// the other.
func scoreRange(t table, r models.Range) (int, bool) {
	if r.Empty() {
		return 0, false
	}
	lo, hi := r.Min, r.Max
	if lo == nil {
		lo = hi
	}
	if hi == nil {
		hi = lo
	}
	return t.eval(*lo, *hi), true
}
