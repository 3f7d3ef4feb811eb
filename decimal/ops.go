package decimal

import (
	"runtime"

	"github.com/coachpo/longport-go/ffi"
)

// Add returns d + o.
func (d *Decimal) Add(o *Decimal) *Decimal { return d.binary("decimal.add", o, d.lib.DecimalAdd) }

// Sub returns d - o.
func (d *Decimal) Sub(o *Decimal) *Decimal { return d.binary("decimal.sub", o, d.lib.DecimalSub) }

// Mul returns d * o.
func (d *Decimal) Mul(o *Decimal) *Decimal { return d.binary("decimal.mul", o, d.lib.DecimalMul) }

// Div returns d / o. Division by zero panics.
func (d *Decimal) Div(o *Decimal) *Decimal { return d.binary("decimal.div", o, d.lib.DecimalDiv) }

// Rem returns the remainder of d / o, with the sign of d.
func (d *Decimal) Rem(o *Decimal) *Decimal { return d.binary("decimal.rem", o, d.lib.DecimalRem) }

// Pow returns d raised to o.
func (d *Decimal) Pow(o *Decimal) *Decimal { return d.binary("decimal.pow", o, d.lib.DecimalPow) }

// AddAssign sets d to d + o and returns d.
func (d *Decimal) AddAssign(o *Decimal) *Decimal {
	return d.assign("decimal.add_assign", o, d.lib.DecimalAdd)
}

// SubAssign sets d to d - o and returns d.
func (d *Decimal) SubAssign(o *Decimal) *Decimal {
	return d.assign("decimal.sub_assign", o, d.lib.DecimalSub)
}

// MulAssign sets d to d * o and returns d.
func (d *Decimal) MulAssign(o *Decimal) *Decimal {
	return d.assign("decimal.mul_assign", o, d.lib.DecimalMul)
}

// DivAssign sets d to d / o and returns d.
func (d *Decimal) DivAssign(o *Decimal) *Decimal {
	return d.assign("decimal.div_assign", o, d.lib.DecimalDiv)
}

// RemAssign sets d to the remainder of d / o and returns d.
func (d *Decimal) RemAssign(o *Decimal) *Decimal {
	return d.assign("decimal.rem_assign", o, d.lib.DecimalRem)
}

func (d *Decimal) Neg() *Decimal   { return d.unary("decimal.neg", d.lib.DecimalNeg) }
func (d *Decimal) Abs() *Decimal   { return d.unary("decimal.abs", d.lib.DecimalAbs) }
func (d *Decimal) Ceil() *Decimal  { return d.unary("decimal.ceil", d.lib.DecimalCeil) }
func (d *Decimal) Floor() *Decimal { return d.unary("decimal.floor", d.lib.DecimalFloor) }
func (d *Decimal) Fract() *Decimal { return d.unary("decimal.fract", d.lib.DecimalFract) }
func (d *Decimal) Trunc() *Decimal { return d.unary("decimal.trunc", d.lib.DecimalTrunc) }

// Normalize strips trailing zeros: 12.340 becomes 12.34.
func (d *Decimal) Normalize() *Decimal {
	return d.unary("decimal.normalize", d.lib.DecimalNormalize)
}

// Round rounds half to even to an integer.
func (d *Decimal) Round() *Decimal { return d.unary("decimal.round", d.lib.DecimalRound) }

// RoundDP rounds half to even to dp decimal places. A value with fewer places is unchanged.
func (d *Decimal) RoundDP(dp uint32) *Decimal {
	return d.unary("decimal.round_dp", func(p ffi.DecimalPtr) { d.lib.DecimalRoundDP(p, dp) })
}

// Sqrt panics for negative values.
func (d *Decimal) Sqrt() *Decimal { return d.unary("decimal.sqrt", d.lib.DecimalSqrt) }

func (d *Decimal) Exp() *Decimal { return d.unary("decimal.exp", d.lib.DecimalExp) }

// ExpWithTolerance stops the series once a term drops below tolerance.
func (d *Decimal) ExpWithTolerance(tolerance *Decimal) *Decimal {
	return d.binary("decimal.exp_with_tolerance", tolerance, d.lib.DecimalExpWithTolerance)
}

// Ln panics for values that are not positive.
func (d *Decimal) Ln() *Decimal    { return d.unary("decimal.ln", d.lib.DecimalLn) }
func (d *Decimal) Log10() *Decimal { return d.unary("decimal.log10", d.lib.DecimalLog10) }
func (d *Decimal) Sin() *Decimal   { return d.unary("decimal.sin", d.lib.DecimalSin) }
func (d *Decimal) Cos() *Decimal   { return d.unary("decimal.cos", d.lib.DecimalCos) }
func (d *Decimal) Tan() *Decimal   { return d.unary("decimal.tan", d.lib.DecimalTan) }
func (d *Decimal) Erf() *Decimal   { return d.unary("decimal.erf", d.lib.DecimalErf) }

// NormalCDF is the standard normal cumulative distribution at d.
func (d *Decimal) NormalCDF() *Decimal {
	return d.unary("decimal.normal_cdf", d.lib.DecimalNormalCDF)
}

// NormPDF is the standard normal density at d.
func (d *Decimal) NormPDF() *Decimal { return d.unary("decimal.norm_pdf", d.lib.DecimalNormPDF) }

// Max returns a copy of the larger operand.
func (d *Decimal) Max(o *Decimal) *Decimal {
	return d.pick("decimal.max", o, d.lib.DecimalMax)
}

// Min returns a copy of the smaller operand.
func (d *Decimal) Min(o *Decimal) *Decimal {
	return d.pick("decimal.min", o, d.lib.DecimalMin)
}

func (d *Decimal) pick(op string, o *Decimal, fn func(a, b ffi.DecimalPtr) ffi.DecimalPtr) *Decimal {
	// the native result aliases one of the operands
	out := wrap(d.lib, d.lib.DecimalClone(fn(d.native(op), o.native(op))))
	runtime.KeepAlive(d)
	runtime.KeepAlive(o)
	return out
}

// Cmp returns -1, 0 or +1.
func (d *Decimal) Cmp(o *Decimal) int {
	v := d.lib.DecimalCmp(d.native("decimal.cmp"), o.native("decimal.cmp"))
	runtime.KeepAlive(d)
	runtime.KeepAlive(o)
	return int(v)
}

func (d *Decimal) Equal(o *Decimal) bool {
	return d.compare("decimal.eq", o, d.lib.DecimalEq)
}

func (d *Decimal) GreaterThan(o *Decimal) bool {
	return d.compare("decimal.gt", o, d.lib.DecimalGt)
}

func (d *Decimal) GreaterThanOrEqual(o *Decimal) bool {
	return d.compare("decimal.gte", o, d.lib.DecimalGte)
}

func (d *Decimal) LessThan(o *Decimal) bool {
	return d.compare("decimal.lt", o, d.lib.DecimalLt)
}

func (d *Decimal) LessThanOrEqual(o *Decimal) bool {
	return d.compare("decimal.lte", o, d.lib.DecimalLte)
}

func (d *Decimal) IsZero() bool { return d.predicate("decimal.is_zero", d.lib.DecimalIsZero) }

func (d *Decimal) IsNegative() bool {
	return d.predicate("decimal.is_negative", d.lib.DecimalIsNegative)
}

func (d *Decimal) IsPositive() bool {
	return d.predicate("decimal.is_positive", d.lib.DecimalIsPositive)
}
