package ia32

import (
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/x86sem/internal/arch"
	"github.com/retroenv/x86sem/internal/expr"
)

// controlFlowTargets returns the destination expressions of a control transfer.
// Instructions that do not modify the instruction pointer have no targets.
func (a *Arch) controlFlowTargets(inst *Instruction, mem arch.Memory) ([]expr.Expr, bool) {
	if !inst.SetsIP() {
		return nil, true
	}

	switch inst.Kind() {
	case KindRet, KindRetf:
		return []expr.Expr{expr.Ind(ESP, a.ptrSize, inst.Address())}, true
	case KindJmp:
		if targets, ok := a.jumpTableTargets(inst, mem); ok {
			return targets, true
		}
	}

	if len(inst.args) == 0 {
		return nil, false
	}
	switch target := inst.args[0].(type) {
	case *Memory:
		size := target.Size / 8
		if size == 0 {
			size = a.ptrSize
		}
		return []expr.Expr{expr.Ind(target.Target(), size, inst.Address())}, true
	case *Reg:
		return []expr.Expr{target.Symbolic()}, true
	case *Immediate:
		return []expr.Expr{target.Value}, true
	case *FarPtr:
		return []expr.Expr{target.Offset}, true
	default:
		a.logger.Debug("Unhandled control flow target",
			log.Hex("address", inst.Address()),
			log.String("instruction", inst.String()))
		return nil, false
	}
}

// jumpTableTargets detects a jump through a table indexed by a scaled register
// like jmp [table+eax*4]. The result contains the symbolic table access and
// every table cell accepted by the scanner.
func (a *Arch) jumpTableTargets(inst *Instruction, mem arch.Memory) ([]expr.Expr, bool) {
	if mem == nil || a.scanner == nil || len(inst.args) == 0 {
		return nil, false
	}
	m, ok := inst.args[0].(*Memory)
	if !ok || m.Disp == nil || m.Index == nil || m.Base != nil || m.Scale != a.ptrSize {
		return nil, false
	}
	disp, ok := expr.ConstValue(m.Disp)
	if !ok {
		return nil, false
	}

	tableAddress := uint64(disp) & widthMask(m.AddrSize)
	table := a.scanner.Scan(mem, tableAddress, inst.Address())

	targets := make([]expr.Expr, 0, len(table.Entries)+1)
	targets = append(targets, m.Symbolic(inst.Address()))
	for _, entry := range table.Entries {
		targets = append(targets, expr.Ind(expr.Const(int64(entry)), a.ptrSize, inst.Address()))
	}

	a.logger.Debug("Jump table detected",
		log.Hex("address", inst.Address()),
		log.Hex("table", tableAddress),
		log.Int("entries", len(table.Entries)))
	return targets, true
}

// IsFunctionReturn returns whether e is the return address slot of a function,
// a pointer sized indirection at the stack pointer.
func (a *Arch) IsFunctionReturn(e expr.Expr) bool {
	ind, ok := expr.Reduce(e).(*expr.Indirection)
	return ok && ind.Len == a.ptrSize && expr.Equal(ind.Target, ESP)
}

// IsStackAddress returns whether the address expression depends on the stack pointer.
func IsStackAddress(e expr.Expr) bool {
	for _, sym := range expr.Externals(e) {
		if sym == ESP {
			return true
		}
	}
	return false
}

// ReplaceImmediate returns a copy of the instruction with old replaced by repl
// in all immediates and memory displacements, used when an address gets a label.
func ReplaceImmediate(inst *Instruction, old, repl expr.Expr) *Instruction {
	c := *inst
	c.args = make([]Operand, len(inst.args))
	for i, arg := range inst.args {
		switch v := arg.(type) {
		case *Immediate:
			c.args[i] = &Immediate{Value: replaceValue(v.Value, old, repl)}
		case *Memory:
			m := *v
			if m.Disp != nil {
				m.Disp = replaceValue(m.Disp, old, repl)
			}
			c.args[i] = &m
		default:
			c.args[i] = arg
		}
	}
	return &c
}

func replaceValue(e, old, repl expr.Expr) expr.Expr {
	if expr.Equal(e, old) {
		return repl
	}
	return expr.Reduce(expr.Replace(e, old, repl))
}
