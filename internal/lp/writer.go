package lp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// termsPerLine keeps written lines well below the 255 character limit some
// readers of the format enforce.
const termsPerLine = 6

// LPName maps a name to the identifier written to the LP file. Characters
// outside the format's identifier set become '_' and a leading digit or
// period is prefixed with 'x'.
func LPName(name string) string {
	if name == "" {
		return "_"
	}
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9', r == '.':
			if i == 0 {
				b.WriteByte('x')
			}
			b.WriteRune(r)
		case strings.ContainsRune("!\"#$%&()/,;?@`'{}|~", r):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// WriteLP writes p in CPLEX LP format.
func WriteLP(w io.Writer, p *Problem) error {
	if len(p.Vars) == 0 {
		return errors.New("lp: problem has no variables")
	}
	if err := p.Validate(); err != nil {
		return err
	}

	names := make([]string, len(p.Vars))
	seen := make(map[string]int, len(p.Vars))
	for i, v := range p.Vars {
		n := LPName(v.Name)
		if j, dup := seen[n]; dup {
			return fmt.Errorf("lp: variables %d and %d both written as %q", j, i, n)
		}
		seen[n] = i
		names[i] = n
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "\\ Problem: %s\n", p.Name)
	fmt.Fprintf(bw, "\\ %d variables, %d rows, %d nonzeros\n", len(p.Vars), len(p.Rows), p.NumNonZeros())

	bw.WriteString("Minimize\n obj:")
	var obj []Term
	for i, v := range p.Vars {
		if v.Cost != 0 {
			obj = append(obj, Term{Var: VarID(i), Coef: v.Cost})
		}
	}
	if len(obj) == 0 {
		obj = []Term{{Var: 0, Coef: 0}}
	}
	writeTerms(bw, names, obj)
	bw.WriteString("\n")

	bw.WriteString("Subject To\n")
	for i, r := range p.Rows {
		name := LPName(r.Name)
		if r.Name == "" {
			name = "r" + strconv.Itoa(i)
		}
		fmt.Fprintf(bw, " %s:", name)
		terms := r.Terms
		if len(terms) == 0 {
			terms = []Term{{Var: 0, Coef: 0}}
		}
		writeTerms(bw, names, terms)
		fmt.Fprintf(bw, " %s %s\n", r.Sense, formatNumber(r.RHS))
	}

	bw.WriteString("Bounds\n")
	for i, v := range p.Vars {
		writeBound(bw, names[i], v)
	}
	bw.WriteString("End\n")
	return bw.Flush()
}

func writeTerms(bw *bufio.Writer, names []string, terms []Term) {
	for i, t := range terms {
		if i > 0 && i%termsPerLine == 0 {
			bw.WriteString("\n   ")
		}
		sign := "+"
		c := t.Coef
		if c < 0 || (c == 0 && math.Signbit(c)) {
			sign = "-"
			c = -c
		}
		fmt.Fprintf(bw, " %s %s %s", sign, formatNumber(c), names[t.Var])
	}
}

func writeBound(bw *bufio.Writer, name string, v Variable) {
	lowerInf := math.IsInf(v.Lower, -1)
	upperInf := math.IsInf(v.Upper, 1)
	switch {
	case lowerInf && upperInf:
		fmt.Fprintf(bw, " %s free\n", name)
	case v.Lower == v.Upper:
		fmt.Fprintf(bw, " %s = %s\n", name, formatNumber(v.Lower))
	case lowerInf:
		fmt.Fprintf(bw, " -inf <= %s <= %s\n", name, formatNumber(v.Upper))
	case v.Lower == 0 && upperInf:
		// default bounds
	case upperInf:
		fmt.Fprintf(bw, " %s >= %s\n", name, formatNumber(v.Lower))
	case v.Lower == 0:
		fmt.Fprintf(bw, " %s <= %s\n", name, formatNumber(v.Upper))
	default:
		fmt.Fprintf(bw, " %s <= %s <= %s\n", formatNumber(v.Lower), name, formatNumber(v.Upper))
	}
}

func formatNumber(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
