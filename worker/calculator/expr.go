package calculator

import (
	"math"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/robertkrimen/otto"

	"ds-trapezoid.com/master/shared"
)

// ErrBadExpression is returned when an expression does not compile or does
// not evaluate to a number.
var ErrBadExpression = errors.New("bad integrand expression")

// CompileExpression turns a JavaScript expression of x, such as
// "Math.sin(x) * x", into an Integrand. The expression is checked once at
// x = 0 so that syntax errors surface before any work is assigned.
func CompileExpression(expr string) (shared.Integrand, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, errors.Wrap(ErrBadExpression, "empty expression")
	}

	vm := otto.New()
	script, err := vm.Compile("", "("+expr+")")
	if err != nil {
		return nil, errors.Wrapf(ErrBadExpression, "%q: %v", expr, err)
	}

	e := &jsIntegrand{vm: vm, script: script, expr: expr}
	if _, err := e.eval(0); err != nil {
		return nil, err
	}
	return e.call, nil
}

// jsIntegrand evaluates a compiled script; the otto VM is not safe for
// concurrent use.
type jsIntegrand struct {
	mu     sync.Mutex
	vm     *otto.Otto
	script *otto.Script
	expr   string
}

func (e *jsIntegrand) eval(x float64) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.vm.Set("x", x); err != nil {
		return 0, errors.Wrap(err, "bind x")
	}
	v, err := e.vm.Run(e.script)
	if err != nil {
		return 0, errors.Wrapf(ErrBadExpression, "%q at x=%g: %v", e.expr, x, err)
	}
	if !v.IsNumber() {
		return 0, errors.Wrapf(ErrBadExpression, "%q at x=%g is %s, not a number", e.expr, x, v.Class())
	}
	return v.ToFloat()
}

// call reports evaluation failures as NaN, which Compute rejects.
func (e *jsIntegrand) call(x float64) float64 {
	v, err := e.eval(x)
	if err != nil {
		return math.NaN()
	}
	return v
}
