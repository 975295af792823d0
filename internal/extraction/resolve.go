package extraction

import (
	"math"

	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/benchmark"
	"github.com/sells-group/valuation-cli/internal/model"
	"github.com/sells-group/valuation-cli/internal/normalize"
)

// autoResolveMaxVariance is the variance ceiling (percent) for unattended
// resolution.
const autoResolveMaxVariance = 3.0

// Strategy selects how a batch resolution picks a winning value.
type Strategy string

const (
	StrategyAverage          Strategy = "average"
	StrategyWeightedAverage  Strategy = "weighted_average"
	StrategyBenchmarkAligned Strategy = "benchmark_aligned"
	StrategyMostRecent       Strategy = "most_recent"
	StrategyHighestConf      Strategy = "highest_confidence"
)

// autoResolvable reports whether a conflict qualifies for unattended
// resolution: low variance, and a type where source disagreement (not a real
// business change) is the likely cause. Cross-period swings always go to a
// human.
func autoResolvable(c *model.DataConflict) bool {
	if c.VariancePercent > autoResolveMaxVariance {
		return false
	}
	return c.Type == model.ConflictCrossDocument || c.Type == model.ConflictInternalConsistency
}

// TryAutoResolve resolves a detected conflict in place when it qualifies,
// taking the highest-confidence observation. Returns whether it resolved.
func (c *Context) TryAutoResolve(conflict *model.DataConflict) bool {
	if conflict.Status != model.ConflictDetected || !autoResolvable(conflict) {
		return false
	}
	value, ok := pickHighestConfidence(conflict.Values)
	if !ok {
		return false
	}
	c.ResolveConflict(conflict.ID, model.ConflictResolution{
		Method: model.ResolveAutoHighestConfidence,
		Value:  value,
	})
	zap.L().Debug("resolve: auto-resolved conflict",
		zap.String("field", conflict.FieldPath),
		zap.Float64("value", value),
		zap.Float64("variance_pct", conflict.VariancePercent),
	)
	return true
}

// ResolveWith applies a caller-selected batch strategy to a value list.
// Each strategy is a pure function over the observations; returns false when
// the list is empty.
func ResolveWith(values []model.ConflictValue, strategy Strategy, bench *benchmark.Range) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	switch strategy {
	case StrategyAverage:
		var sum float64
		for _, v := range values {
			sum += v.Value
		}
		return normalize.Round2(sum / float64(len(values))), true

	case StrategyWeightedAverage:
		var sum, weights float64
		for _, v := range values {
			sum += v.Value * v.Confidence
			weights += v.Confidence
		}
		if weights == 0 {
			return 0, false
		}
		return normalize.Round2(sum / weights), true

	case StrategyBenchmarkAligned:
		if bench == nil {
			return 0, false
		}
		candidates := values
		var inRange []model.ConflictValue
		for _, v := range values {
			if bench.Contains(v.Value) {
				inRange = append(inRange, v)
			}
		}
		if len(inRange) > 0 {
			candidates = inRange
		}
		best := candidates[0]
		for _, v := range candidates[1:] {
			if math.Abs(v.Value-bench.Median) < math.Abs(best.Value-bench.Median) {
				best = v
			}
		}
		return best.Value, true

	case StrategyMostRecent:
		best := values[0]
		for _, v := range values[1:] {
			if v.ExtractedAt.After(best.ExtractedAt) {
				best = v
			}
		}
		return best.Value, true

	default:
		v, ok := pickHighestConfidence(values)
		return v, ok
	}
}

func pickHighestConfidence(values []model.ConflictValue) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	best := values[0]
	for _, v := range values[1:] {
		if v.Confidence > best.Confidence {
			best = v
		}
	}
	return best.Value, true
}
