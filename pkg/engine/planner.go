package engine

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/veriflow/veriflow/pkg/runbook"
)

// artifactIDPattern is the accepted artifact ID alphabet. The colon is a
// namespace delimiter in the child:<runbookName>:<localID> form.
var artifactIDPattern = regexp.MustCompile(`^[A-Za-z0-9_:-]+$`)

// Planner turns a runbook into an immutable execution plan. It fails fast on
// any structural defect: referential integrity, cycles, unknown component
// types, and unresolvable schema versions.
type Planner struct {
	registry ComponentRegistry
}

// NewPlanner creates a planner backed by the given component registry.
func NewPlanner(registry ComponentRegistry) *Planner {
	return &Planner{registry: registry}
}

// BuildPlan validates the runbook and produces an execution plan with the
// artifact DAG, per-artifact pinned schema versions, and the reverse alias
// index.
func (p *Planner) BuildPlan(_ context.Context, rb *runbook.Runbook) (*ExecutionPlan, error) {
	if rb == nil {
		return nil, NewConfigurationError("runbook is nil", nil)
	}
	if len(rb.Artifacts) == 0 {
		return nil, NewConfigurationError("runbook defines no artifacts", nil)
	}

	if err := p.validateDefinitions(rb); err != nil {
		return nil, err
	}

	dag, err := buildDAG(rb)
	if err != nil {
		return nil, err
	}

	if cycle := findCycle(dag); cycle != nil {
		return nil, NewCycleError(
			fmt.Sprintf("circular dependency detected: %s", strings.Join(cycle, " -> ")), cycle)
	}

	order, err := topologicalOrder(dag)
	if err != nil {
		return nil, err
	}

	schemas, err := p.resolveSchemas(rb, dag, order)
	if err != nil {
		return nil, err
	}

	return &ExecutionPlan{
		Runbook:         rb,
		DAG:             dag,
		Schemas:         schemas,
		ReversedAliases: reverseAliases(rb.Aliases),
	}, nil
}

// validateDefinitions checks per-artifact structure and alias integrity.
func (p *Planner) validateDefinitions(rb *runbook.Runbook) error {
	for id, def := range rb.Artifacts {
		if !artifactIDPattern.MatchString(id) {
			return NewConfigurationError(
				fmt.Sprintf("artifact ID %q contains characters outside [A-Za-z0-9_:-]", id), nil)
		}
		switch {
		case def.Source != nil && len(def.Inputs) > 0:
			return NewConfigurationError("artifact has both source and inputs", nil).WithArtifact(id)
		case def.Source == nil && len(def.Inputs) == 0:
			return NewConfigurationError("artifact has neither source nor inputs", nil).WithArtifact(id)
		case def.Source != nil && def.Process != nil:
			return NewConfigurationError("leaf artifact cannot declare a process", nil).WithArtifact(id)
		}
		for _, input := range def.Inputs {
			if _, ok := rb.Artifacts[input]; !ok {
				return NewConfigurationError(
					fmt.Sprintf("input %q does not name an artifact", input), nil).WithArtifact(id)
			}
		}
		if def.Source != nil {
			if _, ok := p.registry.ConnectorFactory(def.Source.Type); !ok {
				return NewConfigurationError(
					fmt.Sprintf("unknown connector type %q", def.Source.Type), nil).WithArtifact(id)
			}
		}
		if def.Process != nil {
			if _, ok := p.registry.ProcessorFactory(def.Process.Type); !ok {
				return NewConfigurationError(
					fmt.Sprintf("unknown processor type %q", def.Process.Type), nil).WithArtifact(id)
			}
		}
	}

	for alias, target := range rb.Aliases {
		if _, ok := rb.Artifacts[target]; !ok {
			return NewConfigurationError(
				fmt.Sprintf("alias %q targets unknown artifact %q", alias, target), nil)
		}
	}

	return nil
}

// buildDAG constructs the forward and reverse adjacency maps.
func buildDAG(rb *runbook.Runbook) (ExecutionDAG, error) {
	dag := ExecutionDAG{
		Forward: make(map[string][]string, len(rb.Artifacts)),
		Reverse: make(map[string][]string, len(rb.Artifacts)),
	}
	for id := range rb.Artifacts {
		dag.Forward[id] = []string{}
		dag.Reverse[id] = []string{}
	}
	// Iterate IDs sorted so adjacency slices are deterministic across runs.
	ids := sortedKeys(rb.Artifacts)
	for _, id := range ids {
		for _, input := range rb.Artifacts[id].Inputs {
			dag.Forward[input] = append(dag.Forward[input], id)
			dag.Reverse[id] = append(dag.Reverse[id], input)
		}
	}
	return dag, nil
}

// findCycle runs a depth-first search over the forward graph and returns one
// offending cycle of artifact IDs, or nil if the graph is acyclic.
func findCycle(dag ExecutionDAG) []string {
	const (
		white = 0 // unvisited
		grey  = 1 // on the current DFS path
		black = 2 // fully explored
	)
	colour := make(map[string]int, len(dag.Forward))
	var path []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		colour[id] = grey
		path = append(path, id)
		for _, next := range dag.Forward[id] {
			switch colour[next] {
			case white:
				if visit(next) {
					return true
				}
			case grey:
				// Close the loop from the first occurrence on the path.
				for i, p := range path {
					if p == next {
						cycle = append(append([]string{}, path[i:]...), next)
						return true
					}
				}
			}
		}
		path = path[:len(path)-1]
		colour[id] = black
		return false
	}

	for _, id := range sortedKeys(dag.Forward) {
		if colour[id] == white && visit(id) {
			return cycle
		}
	}
	return nil
}

// topologicalOrder returns the artifact IDs in Kahn order. Ties within a
// ready set break lexicographically so plans are deterministic.
func topologicalOrder(dag ExecutionDAG) ([]string, error) {
	inDegree := make(map[string]int, len(dag.Reverse))
	for id, preds := range dag.Reverse {
		inDegree[id] = len(preds)
	}

	var ready []string
	for id, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(inDegree))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		var unlocked []string
		for _, next := range dag.Forward[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				unlocked = append(unlocked, next)
			}
		}
		sort.Strings(unlocked)
		ready = append(ready, unlocked...)
	}

	if len(order) != len(inDegree) {
		// Unreachable after findCycle, kept as an internal guard.
		return nil, NewConfigurationError("failed to order all artifacts", nil)
	}
	return order, nil
}

// resolveSchemas pins one (name, version) per artifact and per edge. The
// offered set of a leaf or processed artifact comes from its factory; a
// passthrough artifact offers what its predecessor resolved to. Each outgoing
// edge constrains the offered set to the versions the successor accepts,
// where a passthrough successor accepts what its own consumers accept;
// explicit pins must be members of the compatible set.
func (p *Planner) resolveSchemas(rb *runbook.Runbook, dag ExecutionDAG, order []string) (map[string]ArtifactSchemas, error) {
	resolved := make(map[string]ArtifactSchemas, len(order))

	for _, id := range order {
		def := rb.Artifacts[id]

		offered, err := p.offeredOutputs(rb, resolved, id, def)
		if err != nil {
			return nil, err
		}

		compatible := offered
		for _, succ := range dag.Forward[id] {
			compatible, err = p.constrainEdge(rb, dag, id, succ, compatible)
			if err != nil {
				return nil, err
			}
		}

		output := pickSchema(compatible)

		entry := ArtifactSchemas{Output: output}
		if len(dag.Reverse[id]) > 0 {
			entry.Inputs = make(map[string]Schema, len(dag.Reverse[id]))
			for _, pred := range dag.Reverse[id] {
				entry.Inputs[pred] = resolved[pred].Output
			}
		}
		resolved[id] = entry
	}

	return resolved, nil
}

// offeredOutputs returns the schemas an artifact can be produced with.
func (p *Planner) offeredOutputs(rb *runbook.Runbook, resolved map[string]ArtifactSchemas, id string, def runbook.ArtifactDefinition) ([]Schema, error) {
	switch {
	case def.Source != nil:
		factory, _ := p.registry.ConnectorFactory(def.Source.Type)
		outputs := factory.OutputSchemas()
		if len(outputs) == 0 {
			return nil, NewConfigurationError(
				fmt.Sprintf("connector %q declares no output schemas", def.Source.Type), nil).WithArtifact(id)
		}
		return outputs, nil
	case def.Process != nil:
		factory, _ := p.registry.ProcessorFactory(def.Process.Type)
		outputs := factory.OutputSchemas()
		if len(outputs) == 0 {
			return nil, NewConfigurationError(
				fmt.Sprintf("processor %q declares no output schemas", def.Process.Type), nil).WithArtifact(id)
		}
		return outputs, nil
	default:
		// Passthrough emits its predecessor's message verbatim.
		return []Schema{resolved[def.Inputs[0]].Output}, nil
	}
}

// constrainEdge filters the offered schemas of pred to those the successor
// accepts on the (pred -> succ) edge. A passthrough successor re-emits the
// predecessor's message, so its real constraints are those of its own
// consumers; the recursion looks through chains of process-less artifacts.
func (p *Planner) constrainEdge(rb *runbook.Runbook, dag ExecutionDAG, pred, succ string, offered []Schema) ([]Schema, error) {
	succDef := rb.Artifacts[succ]

	var compatible []Schema
	if succDef.Process == nil {
		compatible = offered
		for _, next := range dag.Forward[succ] {
			var err error
			compatible, err = p.constrainEdge(rb, dag, succ, next, compatible)
			if err != nil {
				return nil, err
			}
		}
	} else {
		factory, _ := p.registry.ProcessorFactory(succDef.Process.Type)
		accepted := factory.InputSchemas()

		acceptedNames := make(map[string][]Schema)
		for _, s := range accepted {
			acceptedNames[s.Name] = append(acceptedNames[s.Name], s)
		}

		shared := false
		for _, o := range offered {
			versions, ok := acceptedNames[o.Name]
			if !ok {
				continue
			}
			shared = true
			for _, a := range versions {
				if o.CompareVersion(a) == 0 {
					compatible = append(compatible, o)
					break
				}
			}
		}

		if !shared {
			return nil, NewSchemaIncompatibleError(fmt.Sprintf(
				"edge %s -> %s: no shared schema name between offered %s and accepted %s",
				pred, succ, schemaList(offered), schemaList(accepted)))
		}
		if len(compatible) == 0 {
			return nil, NewSchemaVersionMismatchError(fmt.Sprintf(
				"edge %s -> %s: offered versions %s do not intersect accepted versions %s",
				pred, succ, schemaList(offered), schemaList(accepted)))
		}
	}

	if pin, ok := succDef.InputVersions[pred]; ok {
		pinned, err := filterPinned(compatible, pin)
		if err != nil {
			return nil, NewSchemaVersionMismatchError(fmt.Sprintf(
				"edge %s -> %s: pinned version %q is not in the compatible set %s",
				pred, succ, pin, schemaList(compatible)))
		}
		compatible = pinned
	}

	return compatible, nil
}

// filterPinned keeps only the schemas whose version string matches the pin.
func filterPinned(schemas []Schema, pin string) ([]Schema, error) {
	var out []Schema
	for _, s := range schemas {
		if s.Version() == pin {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("pin %q not satisfiable", pin)
	}
	return out, nil
}

// pickSchema selects the highest compatible version. When several names
// survive, the lexicographically smallest name is chosen so selection stays
// deterministic.
func pickSchema(schemas []Schema) Schema {
	best := schemas[0]
	for _, s := range schemas[1:] {
		if s.Name < best.Name {
			best = s
			continue
		}
		if s.Name == best.Name && s.CompareVersion(best) > 0 {
			best = s
		}
	}
	return best
}

// reverseAliases inverts the alias map. Duplicate targets keep the
// lexicographically smallest alias so the inverse is deterministic.
func reverseAliases(aliases map[string]string) map[string]string {
	if len(aliases) == 0 {
		return nil
	}
	out := make(map[string]string, len(aliases))
	for _, alias := range sortedKeys(aliases) {
		target := aliases[alias]
		if existing, ok := out[target]; !ok || alias < existing {
			out[target] = alias
		}
	}
	return out
}

// schemaList formats schemas for error messages.
func schemaList(schemas []Schema) string {
	parts := make([]string, len(schemas))
	for i, s := range schemas {
		parts[i] = s.String()
	}
	sort.Strings(parts)
	return "[" + strings.Join(parts, ", ") + "]"
}

// sortedKeys returns the map keys in lexicographic order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
