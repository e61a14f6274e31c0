// Package runtime resolves character sheets: it evaluates every property
// expression against the values resolved so far, repeating until nothing
// new resolves, and rolls properties and actions against the result.
package runtime

import (
	"fmt"
	"sync"

	"github.com/lemonberrylabs/sheetroll/pkg/expr"
	"github.com/lemonberrylabs/sheetroll/pkg/types"
)

// VariableScope manages variable storage with parent scope chaining.
// Variables are looked up starting from the current scope and walking up
// the parent chain. Variables are only ever written to the current scope.
type VariableScope struct {
	parent *VariableScope
	vars   map[string]int
	mu     sync.RWMutex
}

// NewScope creates a new root scope.
func NewScope() *VariableScope {
	return &VariableScope{
		vars: make(map[string]int),
	}
}

// NewScopeFrom creates a root scope holding a copy of ctx.
func NewScopeFrom(ctx expr.Context) *VariableScope {
	s := NewScope()
	for k, v := range ctx {
		s.vars[k] = v
	}
	return s
}

// NewChildScope creates a child scope that inherits from this scope.
func (s *VariableScope) NewChildScope() *VariableScope {
	return &VariableScope{
		parent: s,
		vars:   make(map[string]int),
	}
}

// Get retrieves a variable value, searching up the scope chain.
func (s *VariableScope) Get(name string) (int, bool) {
	s.mu.RLock()
	v, ok := s.vars[name]
	s.mu.RUnlock()
	if ok {
		return v, true
	}
	if s.parent != nil {
		return s.parent.Get(name)
	}
	return 0, false
}

// SetLocal sets a variable in this scope only, shadowing any parent
// variable of the same name.
func (s *VariableScope) SetLocal(name string, value int) {
	s.mu.Lock()
	s.vars[name] = value
	s.mu.Unlock()
}

// Snapshot flattens the scope chain into a Context. Inner scopes shadow
// outer ones.
func (s *VariableScope) Snapshot() expr.Context {
	ctx := expr.Context{}
	if s.parent != nil {
		ctx = s.parent.Snapshot()
	}
	s.mu.RLock()
	for k, v := range s.vars {
		ctx[k] = v
	}
	s.mu.RUnlock()
	return ctx
}

// ScopeAdapter adapts a VariableScope to implement the expr.Scope interface.
type ScopeAdapter struct {
	scope   *VariableScope
	funcMap FunctionRegistry
}

// FunctionRegistry provides function lookup for expression evaluation.
type FunctionRegistry interface {
	// CallFunction calls a named function with the given arguments.
	CallFunction(name string, args []int) (int, error)
}

// NewScopeAdapter creates a scope adapter for expression evaluation.
func NewScopeAdapter(scope *VariableScope, funcs FunctionRegistry) *ScopeAdapter {
	return &ScopeAdapter{scope: scope, funcMap: funcs}
}

// GetVariable implements expr.Scope.
func (a *ScopeAdapter) GetVariable(name string) (int, bool) {
	return a.scope.Get(name)
}

// CallFunction implements expr.Scope.
func (a *ScopeAdapter) CallFunction(name string, args []int) (int, error) {
	if a.funcMap != nil {
		return a.funcMap.CallFunction(name, args)
	}
	return 0, types.NewEvalError(fmt.Sprintf("unknown function '%s'", name))
}
