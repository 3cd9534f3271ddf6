// Command invariantlint is a golang.org/x/tools/go/analysis checker for
// one of this kernel's locking invariants (spec.md 5, "Locking
// discipline"): every function that acquires a lock this repo defines
// (lock.Ticket_t.Acquire, sched.Mutex_t.Lock, sched.Sema_t.P) must also
// release it (Release/Unlock/V) somewhere in the same function body.
// It is a syntactic approximation, not a full control-flow proof -- it
// catches the textual mismatch an Acquire with no matching Release in
// the same function represents, the same class of bug
// biscuit/src/vm/as.go's Lock_pmap/Unlock_pmap pairing is written by
// hand to avoid.
package main

import (
	"go/ast"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/analysis/singlechecker"
	"golang.org/x/tools/go/ast/inspector"
)

// Analyzer is the lockbalance check: for every *ast.FuncDecl, count
// calls to each acquire-shaped method name and its matching
// release-shaped name, and report a mismatch.
var Analyzer = &analysis.Analyzer{
	Name:     "lockbalance",
	Doc:      "reports functions that acquire a kernel lock without a matching release",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

// pairs maps an acquire-method name to the release-method name that
// must balance it, covering every blocking/spin primitive
// lock.Ticket_t, sched.Mutex_t and sched.Sema_t define.
var pairs = map[string]string{
	"Acquire": "Release",
	"Lock":    "Unlock",
	"P":       "V",
}

func main() {
	singlechecker.Main(Analyzer)
}

func run(pass *analysis.Pass) (interface{}, error) {
	insp := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)
	nodeFilter := []ast.Node{(*ast.FuncDecl)(nil)}

	insp.Preorder(nodeFilter, func(n ast.Node) {
		fd, ok := n.(*ast.FuncDecl)
		if !ok || fd.Body == nil {
			return
		}
		acquired := map[string]int{}
		released := map[string]int{}

		ast.Inspect(fd.Body, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}
			sel, ok := call.Fun.(*ast.SelectorExpr)
			if !ok {
				return true
			}
			name := sel.Sel.Name
			if _, isAcquire := pairs[name]; isAcquire {
				acquired[name]++
			}
			for acq, rel := range pairs {
				if name == rel {
					released[acq]++
				}
			}
			return true
		})

		for acq, n := range acquired {
			if released[acq] < n {
				pass.Reportf(fd.Pos(), "%s calls %s %d time(s) but %s appears only %d time(s) in the same function",
					fd.Name.Name, acq, n, pairs[acq], released[acq])
			}
		}
	})

	return nil, nil
}
