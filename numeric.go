package indiserver

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ParseSexagesimal parses an INDI number string into a float64. Accepted
// forms: "[-]d[.f]", "[-]d:m[:s]", "[-]d m[ s]", "[-]d;m[;s]". Missing
// trailing parts default to zero. The magnitude is d + m/60 + s/3600,
// negated if a leading '-' is present.
func ParseSexagesimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, newParseError("number", "empty numeric value", nil)
	}

	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}

	sep := "."
	switch {
	case strings.ContainsAny(s, ":"):
		sep = ":"
	case strings.ContainsAny(s, ";"):
		sep = ";"
	case strings.ContainsAny(s, " "):
		sep = " "
	}

	var fields []string
	if sep == "." {
		fields = []string{s}
	} else {
		for _, f := range strings.Split(s, sep) {
			f = strings.TrimSpace(f)
			if f != "" {
				fields = append(fields, f)
			}
		}
	}

	if len(fields) == 0 || len(fields) > 3 {
		return 0, newParseError("number", fmt.Sprintf("cannot parse numeric value %q", s), nil)
	}

	parts := make([]float64, 3)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return 0, newParseError("number", fmt.Sprintf("cannot parse numeric field %q", f), err)
		}
		parts[i] = v
	}

	val := parts[0] + parts[1]/60 + parts[2]/3600
	if negative {
		val = -val
	}
	return val, nil
}

var sexagesimalFormatRE = regexp.MustCompile(`^%(-?[0-9]*)\.([0-9]+)m$`)

// sexagesimalFractionDigits holds the precision table for the "f"
// component of a "%<w>.<f>m" format specifier.
// 3 -> :mm          5 -> :mm.m         6 -> :mm:ss
// 8 -> :mm:ss.s     9..14 -> more fractional seconds digits (f-7 of them)
func sexagesimalFractionDigits(f int) (minuteOnly bool, minuteFrac int, secondFrac int, ok bool) {
	switch {
	case f == 3:
		return true, 0, 0, true
	case f == 5:
		return true, 1, 0, true
	case f == 6:
		return false, 0, 0, true
	case f == 8:
		return false, 0, 1, true
	case f >= 9 && f <= 14:
		return false, 0, f - 7, true
	default:
		return false, 0, 0, false
	}
}

// FormatNumber formats val according to format, an INDI "format" attribute
// string. If format matches the sexagesimal pattern "%<w>.<f>m" the value
// is rendered as d:mm[:ss[.s]] with left-padding to width w; otherwise
// format is treated as a classic C-style printf specifier (e.g. "%3.1f").
func FormatNumber(val float64, format string) (string, error) {
	if m := sexagesimalFormatRE.FindStringSubmatch(format); m != nil {
		width, _ := strconv.Atoi(strings.TrimPrefix(m[1], "-"))
		f, err := strconv.Atoi(m[2])
		if err != nil {
			return "", newInvalidArgumentError("format", fmt.Sprintf("bad fraction digits in %q", format))
		}
		minuteOnly, minuteFrac, secondFrac, ok := sexagesimalFractionDigits(f)
		if !ok {
			return "", newInvalidArgumentError("format", fmt.Sprintf("unsupported sexagesimal precision %d in %q", f, format))
		}
		s := formatSexagesimal(val, minuteOnly, minuteFrac, secondFrac)
		if width > len(s) {
			s = strings.Repeat(" ", width-len(s)) + s
		}
		return s, nil
	}

	return fmt.Sprintf(format, val), nil
}

func formatSexagesimal(val float64, minuteOnly bool, minuteFrac, secondFrac int) string {
	sign := ""
	if val < 0 {
		sign = "-"
		val = -val
	}

	d := math.Floor(val)
	rem := (val - d) * 60 // minutes, possibly fractional

	if minuteOnly {
		if minuteFrac == 0 {
			m := math.Round(rem)
			if m >= 60 {
				m = 0
				d++
			}
			return fmt.Sprintf("%s%d:%02d", sign, int64(d), int64(m))
		}
		mStr := strconv.FormatFloat(rem, 'f', minuteFrac, 64)
		return fmt.Sprintf("%s%d:%s", sign, int64(d), padIntPart(mStr, 2))
	}

	m := math.Floor(rem)
	secRem := (rem - m) * 60 // seconds, possibly fractional

	if secondFrac == 0 {
		sec := math.Round(secRem)
		if sec >= 60 {
			sec = 0
			m++
		}
		if m >= 60 {
			m = 0
			d++
		}
		return fmt.Sprintf("%s%d:%02d:%02d", sign, int64(d), int64(m), int64(sec))
	}

	secStr := strconv.FormatFloat(secRem, 'f', secondFrac, 64)
	return fmt.Sprintf("%s%d:%02d:%s", sign, int64(d), int64(m), padIntPart(secStr, 2))
}

// padIntPart left-pads the integer portion of a decimal string like "3.50"
// to width digits, producing "03.50".
func padIntPart(s string, width int) string {
	dot := strings.IndexByte(s, '.')
	intPart := s
	fracPart := ""
	if dot >= 0 {
		intPart = s[:dot]
		fracPart = s[dot:]
	}
	for len(intPart) < width {
		intPart = "0" + intPart
	}
	return intPart + fracPart
}
