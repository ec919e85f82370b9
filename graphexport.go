package dnstraverse

import (
	"fmt"

	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
)

// refNode is one Referral rendered as a graph node, grounded in
// ahlien-rmap's pkg/Graph topology nodes but carrying dnstraverse's own
// label (refid, server, state) instead of that package's fixed node-type
// enum.
type refNode struct {
	id int64
	r  *Referral
}

func (n refNode) ID() int64 { return n.id }

func (n refNode) DOTID() string {
	return fmt.Sprintf("%s_%s", n.r.RefID, n.r.ServerName)
}

func (n refNode) Attributes() []encoding.Attribute {
	return []encoding.Attribute{
		{Key: "label", Value: fmt.Sprintf("%q", fmt.Sprintf("%s\\n%s\\n%s", n.r.RefID, n.r.ServerName, n.r.State))},
	}
}

// ExportDOT renders the completed Referral forest as a Graphviz DOT graph:
// one node per Referral (including FAILED and FAST_SKIPPED leaves), one
// edge per parent-child relation. It never mutates the forest and must
// only be called after a Run completes (SPEC_FULL.md section 7).
func ExportDOT(forest []*Referral) ([]byte, error) {
	g := simple.NewDirectedGraph()
	nodes := map[*Referral]refNode{}
	var nextID int64

	var register func(r *Referral)
	register = func(r *Referral) {
		n := refNode{id: nextID, r: r}
		nextID++
		nodes[r] = n
		g.AddNode(n)
		for _, kid := range r.Children {
			register(kid)
		}
	}
	for _, root := range forest {
		register(root)
	}

	var link func(r *Referral)
	link = func(r *Referral) {
		for _, kid := range r.Children {
			g.SetEdge(g.NewEdge(nodes[r], nodes[kid]))
			link(kid)
		}
	}
	for _, root := range forest {
		link(root)
	}

	return dot.Marshal(g, "dnstraverse", "", "  ")
}
