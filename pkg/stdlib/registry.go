// Package stdlib implements the functions callable from dice expressions,
// such as floor(x) and max(a, b).
package stdlib

import (
	"fmt"
	"sort"

	"github.com/lemonberrylabs/sheetroll/pkg/types"
)

// StdlibFunc is a standard library function signature.
type StdlibFunc func(args []int) (int, error)

// Registry holds all standard library functions and serves as a FunctionRegistry.
type Registry struct {
	funcs map[string]StdlibFunc
}

// NewRegistry creates a new stdlib registry with all built-in functions registered.
func NewRegistry() *Registry {
	r := &Registry{
		funcs: make(map[string]StdlibFunc),
	}
	r.registerMath()
	return r
}

// CallFunction implements FunctionRegistry.
func (r *Registry) CallFunction(name string, args []int) (int, error) {
	fn, ok := r.funcs[name]
	if !ok {
		return 0, types.NewEvalError(fmt.Sprintf("unknown function '%s'", name))
	}
	return fn(args)
}

// Register adds a function to the registry.
func (r *Registry) Register(name string, fn StdlibFunc) {
	r.funcs[name] = fn
}

// Names returns the registered function names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// requireArgs checks that the number of args is in range. A negative max
// means no upper bound.
func requireArgs(name string, args []int, min, max int) error {
	if len(args) < min || (max >= 0 && len(args) > max) {
		switch {
		case min == max:
			return types.NewTypeError(fmt.Sprintf("%s expects %d argument(s), got %d", name, min, len(args)))
		case max < 0:
			return types.NewTypeError(fmt.Sprintf("%s expects at least %d argument(s), got %d", name, min, len(args)))
		}
		return types.NewTypeError(fmt.Sprintf("%s expects %d-%d arguments, got %d", name, min, max, len(args)))
	}
	return nil
}
