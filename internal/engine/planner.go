package engine

import (
	"fmt"
	"math"
	"math/bits"
)

// Strategy names how the inequality join is evaluated.
type Strategy string

const (
	// StrategyAuto picks the first strategy whose pair fits the budget,
	// preferring the T2×T3 materialization.
	StrategyAuto Strategy = "auto"

	// StrategyT2T3 materializes T2×T3 sorted by b+c with suffix sums of y*z.
	StrategyT2T3 Strategy = "t2t3"

	// StrategyProbeT3 evaluates the pair T1×T2 and probes T3 sorted by c.
	StrategyProbeT3 Strategy = "probe_t3"

	// StrategyProbeT2 evaluates the pair T1×T3 and probes T2 sorted by b.
	StrategyProbeT2 Strategy = "probe_t2"
)

// Strategies lists every strategy a caller may request, in planner preference order.
var Strategies = []Strategy{StrategyAuto, StrategyT2T3, StrategyProbeT3, StrategyProbeT2}

// ParseStrategy validates a strategy name. The empty string means auto.
func ParseStrategy(s string) (Strategy, error) {
	if s == "" {
		return StrategyAuto, nil
	}
	for _, st := range Strategies {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown strategy %q (want auto, t2t3, probe_t3 or probe_t2)", s)
}

// Sizes are the table dimensions the planner works from.
type Sizes struct {
	T1Rows int
	Groups int // distinct T1 keys; T1Rows is a safe upper bound before grouping
	T2Rows int
	T3Rows int
}

// Estimate is the cost of one candidate pair.
type Estimate struct {
	Strategy Strategy `json:"strategy"`
	Pair     string   `json:"pair"`
	Entries  int64    `json:"entries"`
	Bytes    int64    `json:"bytes"`
	Fits     bool     `json:"fits"`
}

// Plan is the planner's decision for one run.
type Plan struct {
	Requested Strategy   `json:"requested"`
	Budget    int64      `json:"budget"` // <= 0 means unlimited
	Estimates []Estimate `json:"estimates"`
	Chosen    Estimate   `json:"chosen"`
}

// Strategy returns the strategy the run will execute.
func (p *Plan) Strategy() Strategy {
	return p.Chosen.Strategy
}

// Materializes reports whether the plan builds the T2×T3 join.
func (p *Plan) Materializes() bool {
	return p.Chosen.Strategy == StrategyT2T3
}

// PlanQuery estimates the pair size of every strategy and picks one.
//
// The T2×T3 pair costs |T2|·|T3| entries. Each probe strategy conceptually
// walks the pair of T1 groups with one table, G·|T2| or G·|T3| entries.
// Auto materializes T2×T3 when it fits, otherwise the smaller fitting probe
// pair. A requested strategy must fit as well. When nothing fits the run is
// rejected with a RESOURCE_EXHAUSTION error before anything is allocated.
func PlanQuery(sizes Sizes, budget int64, want Strategy) (*Plan, error) {
	if want == "" {
		want = StrategyAuto
	}

	estimates := []Estimate{
		estimate(StrategyT2T3, "T2×T3", sizes.T2Rows, sizes.T3Rows, budget),
		estimate(StrategyProbeT3, "T1×T2", sizes.Groups, sizes.T2Rows, budget),
		estimate(StrategyProbeT2, "T1×T3", sizes.Groups, sizes.T3Rows, budget),
	}
	plan := &Plan{Requested: want, Budget: budget, Estimates: estimates}

	if want != StrategyAuto {
		for _, est := range estimates {
			if est.Strategy != want {
				continue
			}
			if !est.Fits {
				return nil, budgetError(budget, []Estimate{est})
			}
			plan.Chosen = est
			return plan, nil
		}
		return nil, fmt.Errorf("plan: unknown strategy %q", want)
	}

	if estimates[0].Fits {
		plan.Chosen = estimates[0]
		return plan, nil
	}

	var best *Estimate
	for i := 1; i < len(estimates); i++ {
		est := &estimates[i]
		if est.Fits && (best == nil || est.Bytes < best.Bytes) {
			best = est
		}
	}
	if best == nil {
		return nil, budgetError(budget, estimates)
	}
	plan.Chosen = *best
	return plan, nil
}

func estimate(st Strategy, pair string, p, q int, budget int64) Estimate {
	entries := mulSat(int64(p), int64(q))
	size := mulSat(entries, PairEntryBytes)
	return Estimate{
		Strategy: st,
		Pair:     pair,
		Entries:  entries,
		Bytes:    size,
		Fits:     budget <= 0 || size <= budget,
	}
}

func budgetError(budget int64, estimates []Estimate) error {
	return &QueryError{
		Code: ErrCodeResourceExhaustion,
		Op:   "plan",
		Err:  &BudgetExceededError{Budget: budget, Estimates: estimates},
	}
}

// mulSat multiplies two non-negative values, saturating at math.MaxInt64.
func mulSat(a, b int64) int64 {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi != 0 || lo > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(lo)
}
