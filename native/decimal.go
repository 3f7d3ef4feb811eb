package native

import (
	"math"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/coachpo/longport-go/errs"
	"github.com/coachpo/longport-go/ffi"
	"github.com/coachpo/longport-go/internal/pool"
)

// transcendental functions are evaluated to this many decimal places
const mathPrecision = 16

type decimalValue struct {
	mu  sync.Mutex
	d   decimal.Decimal
	str []byte
}

func (v *decimalValue) value() decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.d
}

func (v *decimalValue) update(fn func(decimal.Decimal) decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.d = fn(v.d)
}

var ln10 = mustLn(decimal.NewFromInt(10))

func mustLn(d decimal.Decimal) decimal.Decimal {
	v, err := d.Ln(mathPrecision)
	if err != nil {
		panic(errs.Invariant("decimal_ln", err.Error()))
	}
	return v
}

func (l *Library) newDecimal(d decimal.Decimal) ffi.DecimalPtr {
	return ffi.DecimalPtr(l.decimals.add(&decimalValue{d: d}))
}

func (l *Library) dec(p ffi.DecimalPtr, op string) *decimalValue {
	return l.decimals.get(uintptr(p), op)
}

func (l *Library) apply(p ffi.DecimalPtr, op string, fn func(decimal.Decimal) decimal.Decimal) {
	l.dec(p, op).update(fn)
}

func (l *Library) apply2(a, b ffi.DecimalPtr, op string, fn func(x, y decimal.Decimal) decimal.Decimal) {
	y := l.dec(b, op).value()
	l.dec(a, op).update(func(x decimal.Decimal) decimal.Decimal { return fn(x, y) })
}

// arenaDecimal allocates a decimal freed together with the arena.
func (l *Library) arenaDecimal(a *pool.Arena, d decimal.Decimal) ffi.DecimalPtr {
	p := l.newDecimal(d)
	a.OnReset(func() { l.DecimalFree(p) })
	return p
}

// arenaOptDecimal maps an absent value to the null pointer.
func (l *Library) arenaOptDecimal(a *pool.Arena, d *decimal.Decimal) ffi.DecimalPtr {
	if d == nil {
		return 0
	}
	return l.arenaDecimal(a, *d)
}

// readDecimal reads a request-side decimal. Null maps to nil.
func (l *Library) readDecimal(p ffi.DecimalPtr, op string) *decimal.Decimal {
	if p == 0 {
		return nil
	}
	d := l.dec(p, op).value()
	return &d
}

func (l *Library) DecimalNew(num int64, scale uint32) ffi.DecimalPtr {
	return l.newDecimal(decimal.New(num, -int32(scale)))
}

func (l *Library) DecimalFromString(s ffi.CString) ffi.DecimalPtr {
	if s == nil {
		return 0
	}
	d, err := decimal.NewFromString(ffi.GoString(s))
	if err != nil {
		return 0
	}
	return l.newDecimal(d)
}

func (l *Library) DecimalFromDouble(v float64) ffi.DecimalPtr {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return l.newDecimal(decimal.NewFromFloat(v))
}

func (l *Library) DecimalClone(d ffi.DecimalPtr) ffi.DecimalPtr {
	return l.newDecimal(l.dec(d, "decimal_clone").value())
}

func (l *Library) DecimalFree(d ffi.DecimalPtr) {
	if d == 0 {
		return
	}
	v := l.decimals.remove(uintptr(d), "decimal_free")
	v.mu.Lock()
	for i := range v.str {
		v.str[i] = poisonByte
	}
	v.mu.Unlock()
}

func (l *Library) DecimalToDouble(d ffi.DecimalPtr) float64 {
	f, _ := l.dec(d, "decimal_to_double").value().Float64()
	return f
}

// DecimalToString keeps the scale of the value: 12.340 prints as "12.340". Each call formats
// into a fresh buffer, so a string handed out earlier is never rewritten by a later call.
func (l *Library) DecimalToString(d ffi.DecimalPtr) ffi.CString {
	v := l.dec(d, "decimal_to_string")
	v.mu.Lock()
	defer v.mu.Unlock()
	v.str = append([]byte(formatDecimal(v.d)), 0)
	return &v.str[0]
}

func formatDecimal(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

func normalize(d decimal.Decimal) decimal.Decimal {
	n, err := decimal.NewFromString(d.String())
	if err != nil {
		panic(errs.Invariant("decimal_normalize", err.Error()))
	}
	return n
}

func (l *Library) DecimalAbs(d ffi.DecimalPtr) { l.apply(d, "decimal_abs", decimal.Decimal.Abs) }

func (l *Library) DecimalCeil(d ffi.DecimalPtr) { l.apply(d, "decimal_ceil", decimal.Decimal.Ceil) }

func (l *Library) DecimalFloor(d ffi.DecimalPtr) {
	l.apply(d, "decimal_floor", decimal.Decimal.Floor)
}

func (l *Library) DecimalFract(d ffi.DecimalPtr) {
	l.apply(d, "decimal_fract", func(x decimal.Decimal) decimal.Decimal { return x.Sub(x.Truncate(0)) })
}

func (l *Library) DecimalNeg(d ffi.DecimalPtr) { l.apply(d, "decimal_neg", decimal.Decimal.Neg) }

func (l *Library) DecimalNormalize(d ffi.DecimalPtr) { l.apply(d, "decimal_normalize", normalize) }

// DecimalRound rounds half to even.
func (l *Library) DecimalRound(d ffi.DecimalPtr) {
	l.apply(d, "decimal_round", func(x decimal.Decimal) decimal.Decimal { return x.RoundBank(0) })
}

func (l *Library) DecimalRoundDP(d ffi.DecimalPtr, dp uint32) {
	l.apply(d, "decimal_round_dp", func(x decimal.Decimal) decimal.Decimal {
		if -int64(x.Exponent()) <= int64(dp) {
			return x
		}
		return x.RoundBank(int32(dp))
	})
}

func (l *Library) DecimalTrunc(d ffi.DecimalPtr) {
	l.apply(d, "decimal_trunc", func(x decimal.Decimal) decimal.Decimal { return x.Truncate(0) })
}

// DecimalSqrt panics for negative input.
func (l *Library) DecimalSqrt(d ffi.DecimalPtr) {
	l.apply(d, "decimal_sqrt", sqrt)
}

func sqrt(x decimal.Decimal) decimal.Decimal {
	if x.IsNegative() {
		panic(errs.New("decimal_sqrt", errs.CodeInvalid, errs.WithMessage("square root of a negative number")))
	}
	if x.IsZero() {
		return decimal.Zero
	}
	two := decimal.NewFromInt(2)
	f, _ := x.Float64()
	guess := decimal.NewFromFloat(math.Sqrt(f))
	if guess.IsZero() {
		guess = decimal.New(1, 0)
	}
	for i := 0; i < 32; i++ {
		next := guess.Add(x.DivRound(guess, 28)).DivRound(two, 28)
		if next.Equal(guess) {
			break
		}
		guess = next
	}
	return normalize(guess.Round(mathPrecision + 4))
}

func (l *Library) DecimalExp(d ffi.DecimalPtr) {
	l.apply(d, "decimal_exp", func(x decimal.Decimal) decimal.Decimal {
		v, err := x.ExpTaylor(mathPrecision)
		if err != nil {
			panic(errs.Invariant("decimal_exp", err.Error()))
		}
		return v
	})
}

// DecimalExpWithTolerance sums the Taylor series until a term drops below tolerance.
func (l *Library) DecimalExpWithTolerance(d ffi.DecimalPtr, tolerance ffi.DecimalPtr) {
	l.apply2(d, tolerance, "decimal_exp_with_tolerance", func(x, tol decimal.Decimal) decimal.Decimal {
		tol = tol.Abs()
		sum := decimal.New(1, 0)
		term := decimal.New(1, 0)
		for n := int64(1); n < 1000; n++ {
			term = term.Mul(x).DivRound(decimal.NewFromInt(n), 28)
			sum = sum.Add(term)
			if term.Abs().LessThan(tol) {
				break
			}
		}
		return sum.Round(mathPrecision)
	})
}

// DecimalLn panics for input that is not positive.
func (l *Library) DecimalLn(d ffi.DecimalPtr) {
	l.apply(d, "decimal_ln", func(x decimal.Decimal) decimal.Decimal {
		if !x.IsPositive() {
			panic(errs.New("decimal_ln", errs.CodeInvalid, errs.WithMessage("logarithm of a non-positive number")))
		}
		return mustLn(x)
	})
}

func (l *Library) DecimalLog10(d ffi.DecimalPtr) {
	l.apply(d, "decimal_log10", func(x decimal.Decimal) decimal.Decimal {
		if !x.IsPositive() {
			panic(errs.New("decimal_log10", errs.CodeInvalid, errs.WithMessage("logarithm of a non-positive number")))
		}
		return mustLn(x).DivRound(ln10, mathPrecision)
	})
}

func (l *Library) DecimalSin(d ffi.DecimalPtr) { l.apply(d, "decimal_sin", decimal.Decimal.Sin) }

func (l *Library) DecimalCos(d ffi.DecimalPtr) { l.apply(d, "decimal_cos", decimal.Decimal.Cos) }

func (l *Library) DecimalTan(d ffi.DecimalPtr) { l.apply(d, "decimal_tan", decimal.Decimal.Tan) }

func (l *Library) DecimalErf(d ffi.DecimalPtr) {
	l.apply(d, "decimal_erf", floatFn(math.Erf))
}

func (l *Library) DecimalNormalCDF(d ffi.DecimalPtr) {
	l.apply(d, "decimal_normal_cdf", floatFn(func(x float64) float64 {
		return 0.5 * (1 + math.Erf(x/math.Sqrt2))
	}))
}

func (l *Library) DecimalNormPDF(d ffi.DecimalPtr) {
	l.apply(d, "decimal_norm_pdf", floatFn(func(x float64) float64 {
		return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
	}))
}

func floatFn(fn func(float64) float64) func(decimal.Decimal) decimal.Decimal {
	return func(x decimal.Decimal) decimal.Decimal {
		f, _ := x.Float64()
		return decimal.NewFromFloat(fn(f)).Round(mathPrecision)
	}
}

func (l *Library) DecimalAdd(a, b ffi.DecimalPtr) { l.apply2(a, b, "decimal_add", decimal.Decimal.Add) }

func (l *Library) DecimalSub(a, b ffi.DecimalPtr) { l.apply2(a, b, "decimal_sub", decimal.Decimal.Sub) }

func (l *Library) DecimalMul(a, b ffi.DecimalPtr) { l.apply2(a, b, "decimal_mul", decimal.Decimal.Mul) }

// DecimalDiv panics on division by zero.
func (l *Library) DecimalDiv(a, b ffi.DecimalPtr) {
	l.apply2(a, b, "decimal_div", func(x, y decimal.Decimal) decimal.Decimal {
		if y.IsZero() {
			panic(errs.New("decimal_div", errs.CodeInvalid, errs.WithMessage("division by zero")))
		}
		return x.Div(y)
	})
}

// DecimalRem panics on division by zero. The result has the sign of the dividend.
func (l *Library) DecimalRem(a, b ffi.DecimalPtr) {
	l.apply2(a, b, "decimal_rem", func(x, y decimal.Decimal) decimal.Decimal {
		if y.IsZero() {
			panic(errs.New("decimal_rem", errs.CodeInvalid, errs.WithMessage("division by zero")))
		}
		return x.Mod(y)
	})
}

func (l *Library) DecimalPow(a, exp ffi.DecimalPtr) {
	l.apply2(a, exp, "decimal_pow", func(x, y decimal.Decimal) decimal.Decimal {
		var (
			v   decimal.Decimal
			err error
		)
		if y.Equal(y.Truncate(0)) && y.Abs().LessThanOrEqual(decimal.NewFromInt(math.MaxInt32)) {
			v, err = x.PowInt32(int32(y.IntPart()))
		} else {
			v, err = x.PowWithPrecision(y, mathPrecision)
		}
		if err != nil {
			panic(errs.New("decimal_pow", errs.CodeInvalid, errs.WithMessage(err.Error())))
		}
		return v
	})
}

func (l *Library) DecimalIsZero(d ffi.DecimalPtr) bool {
	return l.dec(d, "decimal_is_zero").value().IsZero()
}

func (l *Library) DecimalIsNegative(d ffi.DecimalPtr) bool {
	return l.dec(d, "decimal_is_negative").value().IsNegative()
}

func (l *Library) DecimalIsPositive(d ffi.DecimalPtr) bool {
	return l.dec(d, "decimal_is_positive").value().IsPositive()
}

func (l *Library) DecimalCmp(a, b ffi.DecimalPtr) int32 {
	return int32(l.dec(a, "decimal_cmp").value().Cmp(l.dec(b, "decimal_cmp").value()))
}

func (l *Library) DecimalEq(a, b ffi.DecimalPtr) bool  { return l.DecimalCmp(a, b) == 0 }
func (l *Library) DecimalGt(a, b ffi.DecimalPtr) bool  { return l.DecimalCmp(a, b) > 0 }
func (l *Library) DecimalGte(a, b ffi.DecimalPtr) bool { return l.DecimalCmp(a, b) >= 0 }
func (l *Library) DecimalLt(a, b ffi.DecimalPtr) bool  { return l.DecimalCmp(a, b) < 0 }
func (l *Library) DecimalLte(a, b ffi.DecimalPtr) bool { return l.DecimalCmp(a, b) <= 0 }

// DecimalMax returns whichever argument is larger; ties return a.
func (l *Library) DecimalMax(a, b ffi.DecimalPtr) ffi.DecimalPtr {
	if l.DecimalCmp(a, b) >= 0 {
		return a
	}
	return b
}

// DecimalMin returns whichever argument is smaller; ties return a.
func (l *Library) DecimalMin(a, b ffi.DecimalPtr) ffi.DecimalPtr {
	if l.DecimalCmp(a, b) <= 0 {
		return a
	}
	return b
}
