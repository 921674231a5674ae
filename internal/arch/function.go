package arch

import (
	"github.com/retroenv/x86sem/internal/expr"
)

// Function is a function entity of the engine.
type Function interface {
	// Binding returns the current effect of calling the function.
	Binding() FunctionBinding
	// SetBinding replaces the effect of calling the function.
	SetBinding(b FunctionBinding)
}

// FunctionBinding is the effect of calling a function. It is either a
// StaticBinding or a DynamicCallback.
type FunctionBinding interface {
	isFunctionBinding()
}

// StaticBinding is a fully known function effect.
type StaticBinding struct {
	Binding *expr.Binding
}

// DynamicCallback is a function effect that is completed per call site by the
// handler, usually to determine the stack pointer adjustment.
type DynamicCallback struct {
	Base    *expr.Binding
	Handler Callback
}

func (StaticBinding) isFunctionBinding()   {}
func (DynamicCallback) isFunctionBinding() {}

// Callback computes the effect of a function at a specific call site.
type Callback func(req CallbackRequest) *expr.Binding

// CallbackRequest contains the arguments of a callback invocation.
type CallbackRequest struct {
	Engine   Engine
	Binding  *expr.Binding // binding known so far
	Function uint64        // address of the called function
	Default  bool          // the function is the default for unknown callees
	CallSite uint64        // address of the call instruction
	Expr     expr.Expr     // expression being backtraced
	Origin   uint64        // address the backtrace originated from
	MaxDepth int
}

// Resolve returns the effect of the function binding for a call site.
func Resolve(b FunctionBinding, req CallbackRequest) *expr.Binding {
	switch fb := b.(type) {
	case StaticBinding:
		return fb.Binding
	case DynamicCallback:
		req.Binding = fb.Base
		return fb.Handler(req)
	default:
		return nil
	}
}
