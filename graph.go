package hotswap

import (
	"fmt"
	"strconv"
	"strings"
)

// LineageNode is a base generation, a generation or a handle.
type LineageNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// LineageEdge means "From is built on To": a generation on the base, a
// handle on the generation it is bound to.
type LineageEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Lineage is the generation history of one type.
type Lineage struct {
	Type  string        `json:"type"`
	Nodes []LineageNode `json:"nodes"`
	Edges []LineageEdge `json:"edges"`
}

// Lineage snapshots the generation history and handle bindings.
func (s *Session[T]) Lineage() Lineage {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := Lineage{Type: s.typeName}
	if s.baseDeclared {
		l.Nodes = append(l.Nodes, LineageNode{ID: s.baseNS, Label: s.baseNS + "\n(base)"})
	}
	byNumber := make(map[int]string, len(s.generations))
	for _, g := range s.generations {
		byNumber[g.Number] = g.Namespace
		l.Nodes = append(l.Nodes, LineageNode{
			ID:    g.Namespace,
			Label: fmt.Sprintf("%s\n(generation %d)", g.Namespace, g.Number),
		})
		if s.baseDeclared {
			l.Edges = append(l.Edges, LineageEdge{From: g.Namespace, To: s.baseNS})
		}
	}
	for _, id := range s.order {
		l.Nodes = append(l.Nodes, LineageNode{ID: id, Label: id})
		if ns, ok := byNumber[s.handles[id].Generation()]; ok {
			l.Edges = append(l.Edges, LineageEdge{From: id, To: ns})
		}
	}
	return l
}

// graphSyntax holds what differs between the text formats.
type graphSyntax struct {
	header    func(typ string) string
	footer    string
	node      string // alias, label
	edge      string // from alias, to alias
	labelRepl *strings.Replacer
}

var (
	dotSyntax = graphSyntax{
		header:    func(typ string) string { return fmt.Sprintf("digraph %q {\n  rankdir=LR;\n", typ) },
		footer:    "}\n",
		node:      "  %s [label=\"%s\"];\n",
		edge:      "  %s -> %s;\n",
		labelRepl: strings.NewReplacer(`"`, `\"`, "\n", `\n`),
	}
	mermaidSyntax = graphSyntax{
		header:    func(string) string { return "graph TD\n" },
		node:      "    %s[\"%s\"]\n",
		edge:      "    %s --> %s\n",
		labelRepl: strings.NewReplacer(`"`, "#quot;", "\n", "<br/>"),
	}
)

// DOT exports Graphviz DOT text.
func (l Lineage) DOT() string { return l.render(dotSyntax) }

// Mermaid exports Mermaid graph text.
func (l Lineage) Mermaid() string { return l.render(mermaidSyntax) }

// render writes nodes under positional aliases and drops edges whose ends
// are not nodes.
func (l Lineage) render(syn graphSyntax) string {
	var b strings.Builder
	b.WriteString(syn.header(l.Type))

	aliases := make(map[string]string, len(l.Nodes))
	for i, n := range l.Nodes {
		aliases[n.ID] = "n" + strconv.Itoa(i)
		fmt.Fprintf(&b, syn.node, aliases[n.ID], syn.labelRepl.Replace(n.Label))
	}
	for _, e := range l.Edges {
		from, okFrom := aliases[e.From]
		to, okTo := aliases[e.To]
		if okFrom && okTo {
			fmt.Fprintf(&b, syn.edge, from, to)
		}
	}
	b.WriteString(syn.footer)
	return b.String()
}
