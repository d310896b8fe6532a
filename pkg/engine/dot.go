package engine

import (
	"fmt"
	"strings"
)

// ToDOT renders the plan's artifact DAG in DOT format for visualization with
// Graphviz tools. Leaves, derived artifacts, and outputs get distinct fills.
func (p *ExecutionPlan) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph ExecutionPlan {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=\"filled,rounded\"];\n\n")

	for _, id := range sortedKeys(p.Runbook.Artifacts) {
		def := p.Runbook.Artifacts[id]
		label := id
		if schemas, ok := p.Schemas[id]; ok {
			label = fmt.Sprintf("%s\\n%s", id, schemas.Output)
		}
		if alias, ok := p.ReversedAliases[id]; ok {
			label += fmt.Sprintf("\\n(alias: %s)", alias)
		}
		sb.WriteString(fmt.Sprintf("  %q [label=%q, fillcolor=%q];\n",
			id, label, artifactColor(def.IsLeaf(), def.Output)))
	}
	sb.WriteString("\n")

	for _, id := range sortedKeys(p.DAG.Forward) {
		for _, succ := range p.DAG.Forward[id] {
			sb.WriteString(fmt.Sprintf("  %q -> %q;\n", id, succ))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

func artifactColor(leaf, output bool) string {
	switch {
	case output:
		return "lightgreen"
	case leaf:
		return "lightblue"
	default:
		return "lightgray"
	}
}
