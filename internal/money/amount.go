package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Amount is a fixed-precision, non-negative quantity supporting up to four
// digits past the decimal point. It is backed by a uint64 counting 1/10000
// units, so arithmetic is plain integer arithmetic and comparisons come from
// the underlying type. Digits five or more places past the decimal point
// ("dust") are discarded at parse time, never rounded.
//
// The type carries no underflow guard: subtracting a larger Amount from a
// smaller one wraps. Callers must verify sufficiency before subtracting.
type Amount uint64

// Scale is the number of internal units per whole unit.
const Scale = 10_000

// Zero is the additive identity.
const Zero Amount = 0

// maxExactFloat is the largest integer a float64 represents exactly (2^53-1).
const maxExactFloat = 9007199254740991

// minNormalFloat is the smallest positive normal float64 (0x1p-1022).
const minNormalFloat = 2.2250738585072014e-308

var (
	ErrInvalidFormat = errors.New("invalid amount format")
	ErrOutOfRange    = errors.New("out of range: the supplied value cannot fit into the underlying type")
	ErrNonNormal     = errors.New("amounts must be finite and a number")
	ErrNegative      = errors.New("amounts must not be negative")
)

// amountPattern matches a sign-free integer part, optionally followed by a
// decimal point and at least one digit. Group 2 holds up to four fractional
// digits; group 3 holds the dust, which is discarded.
//
// Compiled once, process-wide, on first use.
var amountPattern = sync.OnceValue(func() *regexp.Regexp {
	return regexp.MustCompile(`^(\d+)(?:\.(\d{1,4})(\d*))?$`)
})

var fracMultiplier = [5]uint64{1, 10, 100, 1_000, 10_000}

// Parse converts decimal text into an Amount. The integer part must fit the
// scaled representation or Parse fails with ErrOutOfRange; any shape other
// than digits with an optional dot-and-digits suffix fails with
// ErrInvalidFormat. A trailing dot with no digit after it is invalid.
func Parse(s string) (Amount, error) {
	m := amountPattern().FindStringSubmatch(s)
	if m == nil {
		return 0, ErrInvalidFormat
	}

	units, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil || units > math.MaxUint64/Scale {
		return 0, ErrOutOfRange
	}
	value := units * Scale

	if frac := strings.TrimRight(m[2], "0"); frac != "" {
		// 1-4 digits always parse
		n, _ := strconv.ParseUint(frac, 10, 64)
		n *= fracMultiplier[4-len(frac)]
		if value > math.MaxUint64-n {
			return 0, ErrOutOfRange
		}
		value += n
	}

	return Amount(value), nil
}

// MustParse is Parse for literals known to be valid. It panics otherwise.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("money: MustParse(%q): %v", s, err))
	}
	return a
}

// FromFloat64 converts a floating-point number into an Amount. NaN,
// infinities and nonzero subnormals fail with ErrNonNormal; negative inputs
// fail with ErrNegative. Magnitudes whose scaled value exceeds 2^53-1 cannot
// be converted exactly through the float, so they are routed through the
// number's canonical text form and Parse instead.
func FromFloat64(f float64) (Amount, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrNonNormal
	}
	if f != 0 && math.Abs(f) < minNormalFloat {
		return 0, ErrNonNormal
	}
	if f < 0 {
		return 0, ErrNegative
	}

	scaled := math.Floor(f * Scale)
	if scaled > maxExactFloat {
		return Parse(strconv.FormatFloat(f, 'f', -1, 64))
	}
	return Amount(scaled), nil
}

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool {
	return a == 0
}

// String renders the integer part and, when the fractional remainder is
// nonzero, a dot followed by the remainder with trailing zeros trimmed:
// 1.5000 renders "1.5" and 0.0001 renders "0.0001". Parse(a.String()) == a
// for every representable Amount.
func (a Amount) String() string {
	units := uint64(a) / Scale
	frac := uint64(a) % Scale
	if frac == 0 {
		return strconv.FormatUint(units, 10)
	}
	post := strings.TrimRight(fmt.Sprintf("%04d", frac), "0")
	return strconv.FormatUint(units, 10) + "." + post
}

// MarshalJSON emits the canonical text form. Encoding as a JSON number would
// lose precision above 2^53-1 internal units.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts either a JSON string (routed through Parse) or a JSON
// number (routed through FromFloat64).
func (a *Amount) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := Parse(s)
		if err != nil {
			return err
		}
		*a = v
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	v, err := FromFloat64(f)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
