package calculator

import (
	"math"
	"sort"
	"strings"

	"ds-trapezoid.com/master/shared"
)

// Reference is the kernel of the reference run, f(x) = x².
const Reference = "x^2"

var functions = map[string]shared.Integrand{
	// polynomials
	"x^2":             func(x float64) float64 { return x * x },
	"x^3":             func(x float64) float64 { return x * x * x },
	"2*x^3 - 5*x + 1": func(x float64) float64 { return 2*x*x*x - 5*x + 1 },
	"x^4 - 4*x^2":     func(x float64) float64 { return math.Pow(x, 4) - 4*x*x },

	// trigonometric
	"sin(x)":          math.Sin,
	"cos(x)":          math.Cos,
	"sin(x) + cos(x)": func(x float64) float64 { return math.Sin(x) + math.Cos(x) },
	"sin(x) * cos(x)": func(x float64) float64 { return math.Sin(x) * math.Cos(x) },

	// exponential and logarithmic
	"exp(x)":    math.Exp,
	"log(x)":    math.Log,
	"exp(-x^2)": func(x float64) float64 { return math.Exp(-x * x) },

	// rational and other
	"1/x":                func(x float64) float64 { return 1 / x },
	"1/(1 + x^2)":        func(x float64) float64 { return 1 / (1 + x*x) },
	"sqrt(x)":            math.Sqrt,
	"x * sin(x)":         func(x float64) float64 { return x * math.Sin(x) },
	"exp(x) / (1 + x^2)": func(x float64) float64 { return math.Exp(x) / (1 + x*x) },
}

// Lookup returns a named integrand from the catalogue. Any other name is
// compiled as a JavaScript expression of x.
func Lookup(name string) (shared.Integrand, error) {
	name = strings.TrimSpace(name)
	if f, ok := functions[name]; ok {
		return f, nil
	}
	return CompileExpression(name)
}

// Names lists the catalogue in sorted order.
func Names() []string {
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
