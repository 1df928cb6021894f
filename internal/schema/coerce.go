package schema

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	plainInt     = regexp.MustCompile(`^[+-]?\d+$`)
	groupedInt   = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+$`)
	underInt     = regexp.MustCompile(`^[+-]?\d+(_\d+)+$`)
	pairTimes    = regexp.MustCompile(`^(\d+)\s*[xX×*]\s*(\d+)$`)
	pairRepeated = regexp.MustCompile(`^\[\s*(\d+)\s*\]\s*\*\s*(\d+)$`)
	pairList     = regexp.MustCompile(`^[\[(]\s*(\d+(?:\s*,\s*\d+)*)\s*,?\s*[\])]$`)
)

// Coerce converts raw text into a Value of the rule's kind. On failure the
// returned Value is KindText with Raw preserved, alongside the error.
func Coerce(rule Rule, raw string) (Value, error) {
	text := Unquote(strings.TrimSpace(raw))
	v := Value{Kind: rule.Kind, Raw: raw}

	var err error
	switch rule.Kind {
	case KindInt:
		v.Int, err = ParseInt(text)
	case KindFloat:
		v.Float, err = ParseFloat(text)
	case KindEnum:
		v.Enum, err = parseEnum(text, rule.Enum)
	case KindPair:
		v.Pair, err = ParsePair(text)
	default:
		return v, nil
	}
	if err != nil {
		return Value{Kind: KindText, Raw: raw}, err
	}
	return v, nil
}

// ParseInt accepts plain, thousands-separated ("10,000"), underscored
// ("10_000") and integral exponent ("1e4") literals.
func ParseInt(s string) (int64, error) {
	switch {
	case plainInt.MatchString(s):
	case groupedInt.MatchString(s):
		s = strings.ReplaceAll(s, ",", "")
	case underInt.MatchString(s):
		s = strings.ReplaceAll(s, "_", "")
	case strings.ContainsAny(s, "eE"):
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f != math.Trunc(f) || math.Abs(f) >= math.MaxInt64 {
			return 0, fmt.Errorf("%q is not an integer", s)
		}
		return int64(f), nil
	default:
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer: %w", s, err)
	}
	return n, nil
}

// ParseFloat accepts decimal and exponent literals plus the infinities
// written as "inf", "-inf", "np.inf" or "np.NINF".
func ParseFloat(s string) (float64, error) {
	switch strings.ToLower(s) {
	case "inf", "+inf", "np.inf":
		return math.Inf(1), nil
	case "-inf", "-np.inf", "np.ninf":
		return math.Inf(-1), nil
	case "nan", "np.nan":
		return 0, fmt.Errorf("%q is not a usable number", s)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return f, nil
}

// ParsePair reads a width/depth pair from "256 x 2", "[256] * 2" or a list
// of identical widths such as "[256, 256]".
func ParsePair(s string) (Pair, error) {
	if m := pairTimes.FindStringSubmatch(s); m != nil {
		return newPair(m[1], m[2])
	}
	if m := pairRepeated.FindStringSubmatch(s); m != nil {
		return newPair(m[1], m[2])
	}
	if m := pairList.FindStringSubmatch(s); m != nil {
		parts := strings.Split(m[1], ",")
		width := strings.TrimSpace(parts[0])
		for _, p := range parts[1:] {
			if strings.TrimSpace(p) != width {
				return Pair{}, fmt.Errorf("%q has layers of different widths", s)
			}
		}
		return newPair(width, strconv.Itoa(len(parts)))
	}
	return Pair{}, fmt.Errorf("%q is not a width x depth pair", s)
}

// Limits on a width x depth pair. Layers() allocates Depth ints, so an
// unbounded depth would let one typo exhaust memory.
const (
	MaxPairWidth = 1 << 20
	MaxPairDepth = 64
)

func newPair(width, depth string) (Pair, error) {
	w, err := strconv.Atoi(width)
	if err != nil {
		return Pair{}, fmt.Errorf("width %q: %w", width, err)
	}
	d, err := strconv.Atoi(depth)
	if err != nil {
		return Pair{}, fmt.Errorf("depth %q: %w", depth, err)
	}
	if w <= 0 || d <= 0 {
		return Pair{}, fmt.Errorf("width and depth must be positive, got %d x %d", w, d)
	}
	if w > MaxPairWidth || d > MaxPairDepth {
		return Pair{}, fmt.Errorf("%d x %d exceeds the %d x %d limit", w, d, MaxPairWidth, MaxPairDepth)
	}
	return Pair{Width: w, Depth: d}, nil
}

func parseEnum(s string, allowed []string) (string, error) {
	lower := strings.ToLower(s)
	for _, a := range allowed {
		if lower == a {
			return a, nil
		}
	}
	return "", fmt.Errorf("%q is not one of %s", s, strings.Join(allowed, ", "))
}

// Unquote strips one pair of matching single or double quotes.
func Unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '\'' || first == '"') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}
