// Package entail proof DAG rendering.
//
// This file implements the inspection views over a reconstructed operation
// list: an indented tree text in conclusion order and a DOT graph export
// for graph tooling.
package entail

import (
	"fmt"
	"strings"

	"github.com/emicklei/dot"
)

// ProofDAG is an operation list viewed as a dependency graph: node i
// depends on the nodes in ops[i].Inputs.
type ProofDAG struct {
	ops []Operation
}

// NewProofDAG wraps a reconstructed operation list.
func NewProofDAG(ops []Operation) *ProofDAG {
	return &ProofDAG{ops: ops}
}

// ProofDAGFromAnswer reconstructs and wraps in one step.
func ProofDAGFromAnswer(answer *ConstraintStore, request []StatementTmpl) (*ProofDAG, error) {
	ops, err := ReconstructOperations(answer, request)
	if err != nil {
		return nil, err
	}
	return NewProofDAG(ops), nil
}

// Operations returns the underlying list.
func (d *ProofDAG) Operations() []Operation { return d.ops }

// roots lists the operations no other operation consumes.
func (d *ProofDAG) roots() []int {
	consumed := make(map[int]bool)
	for _, op := range d.ops {
		for _, in := range op.Inputs {
			consumed[in] = true
		}
	}
	var out []int
	for i := range d.ops {
		if !consumed[i] {
			out = append(out, i)
		}
	}
	return out
}

// TreeText renders the DAG as an indented tree from its roots. Shared
// sub-operations repeat under each consumer; the text is for human eyes,
// not round-tripping.
func (d *ProofDAG) TreeText() string {
	var b strings.Builder
	var walk func(idx, depth int)
	walk = func(idx, depth int) {
		op := d.ops[idx]
		fmt.Fprintf(&b, "%s%s\n", strings.Repeat("  ", depth), op)
		for _, in := range op.Inputs {
			walk(in, depth+1)
		}
	}
	for _, root := range d.roots() {
		walk(root, 0)
	}
	return b.String()
}

// ToDot exports the DAG in Graphviz DOT form. Public operations are drawn
// with a doubled border.
func (d *ProofDAG) ToDot() string {
	g := dot.NewGraph(dot.Directed)
	nodes := make([]dot.Node, len(d.ops))
	for i, op := range d.ops {
		// The emitted statement name is assigned by the library, so the
		// operation index travels in the node's id attribute.
		n := g.Node(fmt.Sprintf("op%d", i)).
			Label(fmt.Sprintf("%s\n%s", op.Kind, op.Conclusion)).
			Attr("id", fmt.Sprintf("op%d", i))
		if op.Public {
			n = n.Attr("peripheries", "2")
		}
		nodes[i] = n
	}
	for i, op := range d.ops {
		for _, in := range op.Inputs {
			g.Edge(nodes[in], nodes[i])
		}
	}
	return g.String()
}
