// Package grid computes grid price levels and per-level order sizes.
//
// All arithmetic is exact decimal; levels are floor-quantized to the price
// tick, deduplicated and returned in descending order.
package grid

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// SpacingMode selects how levels are distributed between the bounds.
type SpacingMode string

const (
	SpacingArithmetic SpacingMode = "arithmetic"
	SpacingGeometric  SpacingMode = "geometric"
)

var (
	ErrInvalidLevelCount = errors.New("grid level count must be at least 1")
	ErrInvalidBounds     = errors.New("grid bounds must satisfy upper > lower > 0")
	ErrTooFewLevels      = errors.New("fewer than 2 unique grid levels after quantization")
	ErrUnknownSpacing    = errors.New("unknown spacing mode")
)

// rootPrecision is the number of decimal places carried through the
// geometric ratio and the level products.
const rootPrecision = 32

// ParseSpacingMode accepts the mode names plus the "normal"/"log" aliases.
func ParseSpacingMode(s string) (SpacingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "arithmetic", "normal", "linear":
		return SpacingArithmetic, nil
	case "geometric", "log", "logarithmic":
		return SpacingGeometric, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSpacing, s)
	}
}

// LevelSet is the outcome of a level computation.
type LevelSet struct {
	Levels    []decimal.Decimal // descending, quantized, unique
	Requested int               // count + 1
	Dropped   int               // levels lost to quantization collisions
}

// Reduced reports whether fewer levels survived than were requested.
func (s LevelSet) Reduced() bool {
	return s.Dropped > 0
}

// Levels computes count+1 levels between lower and upper (inclusive).
func Levels(upper, lower decimal.Decimal, count int, mode SpacingMode, tick decimal.Decimal) (LevelSet, error) {
	if count < 1 {
		return LevelSet{}, fmt.Errorf("%w: got %d", ErrInvalidLevelCount, count)
	}
	if !lower.IsPositive() || upper.LessThanOrEqual(lower) {
		return LevelSet{}, fmt.Errorf("%w: upper=%s lower=%s", ErrInvalidBounds, upper, lower)
	}

	var raw []decimal.Decimal
	switch mode {
	case SpacingArithmetic:
		raw = arithmeticLevels(upper, lower, count)
	case SpacingGeometric:
		var err error
		raw, err = geometricLevels(upper, lower, count)
		if err != nil {
			return LevelSet{}, err
		}
	default:
		return LevelSet{}, fmt.Errorf("%w: %q", ErrUnknownSpacing, mode)
	}

	levels := dedupe(raw, tick)
	set := LevelSet{
		Levels:    levels,
		Requested: count + 1,
		Dropped:   count + 1 - len(levels),
	}
	if len(levels) < 2 {
		return set, fmt.Errorf("%w: got %d", ErrTooFewLevels, len(levels))
	}
	return set, nil
}

// Step returns the arithmetic spacing (upper-lower)/count.
func Step(upper, lower decimal.Decimal, count int) decimal.Decimal {
	return upper.Sub(lower).Div(decimal.NewFromInt(int64(count)))
}

func arithmeticLevels(upper, lower decimal.Decimal, count int) []decimal.Decimal {
	step := Step(upper, lower, count)
	levels := make([]decimal.Decimal, 0, count+1)
	for i := 0; i < count; i++ {
		levels = append(levels, lower.Add(step.Mul(decimal.NewFromInt(int64(i)))))
	}
	return append(levels, upper)
}

// Ratio returns (upper/lower)^(1/count).
func Ratio(upper, lower decimal.Decimal, count int) decimal.Decimal {
	return nthRoot(upper.DivRound(lower, rootPrecision), count)
}

// geometricLevels builds each level from the previous one by a single
// multiplication. The top level is pinned to upper since L*ratio^N == U.
func geometricLevels(upper, lower decimal.Decimal, count int) ([]decimal.Decimal, error) {
	ratio := Ratio(upper, lower, count)
	if ratio.LessThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: ratio %s <= 1", ErrInvalidBounds, ratio)
	}

	levels := make([]decimal.Decimal, 0, count+1)
	cur := lower
	for i := 0; i < count; i++ {
		levels = append(levels, cur)
		cur = cur.Mul(ratio).Round(rootPrecision)
	}
	return append(levels, upper), nil
}

// nthRoot solves r^n = x with Newton's method in decimal arithmetic.
func nthRoot(x decimal.Decimal, n int) decimal.Decimal {
	if n == 1 || x.IsZero() {
		return x
	}

	f, _ := x.Float64()
	r := decimal.NewFromFloat(math.Pow(f, 1/float64(n)))
	nd := decimal.NewFromInt(int64(n))
	n1 := decimal.NewFromInt(int64(n - 1))
	epsilon := decimal.New(1, -(rootPrecision - 2))

	for i := 0; i < 100; i++ {
		pow := decimal.NewFromInt(1)
		for j := 0; j < n-1; j++ {
			pow = pow.Mul(r).Round(rootPrecision + 8)
		}
		next := n1.Mul(r).Add(x.DivRound(pow, rootPrecision+8)).DivRound(nd, rootPrecision)
		if next.Sub(r).Abs().LessThan(epsilon) {
			return next
		}
		r = next
	}
	return r
}

// dedupe quantizes, sorts descending and collapses levels within half a
// tick of their higher neighbour, keeping the higher one.
func dedupe(raw []decimal.Decimal, tick decimal.Decimal) []decimal.Decimal {
	quantized := make([]decimal.Decimal, len(raw))
	for i, lvl := range raw {
		quantized[i] = FloorToStep(lvl, tick)
	}
	sort.Slice(quantized, func(i, j int) bool {
		return quantized[i].GreaterThan(quantized[j])
	})

	tolerance := tick.Div(decimal.NewFromInt(2))
	out := make([]decimal.Decimal, 0, len(quantized))
	for _, lvl := range quantized {
		if n := len(out); n > 0 && out[n-1].Sub(lvl).Abs().LessThanOrEqual(tolerance) {
			continue
		}
		out = append(out, lvl)
	}
	return out
}
