package watchreload

// propagation is the traversal context of one staleness walk. It is built
// by propagate and only read by the engine afterwards.
type propagation struct {
	registry *Registry

	// outdated holds initialized ancestors that must re-run their factory,
	// in discovery order.
	outdated    []*Module
	outdatedSet map[string]struct{}

	// accepting holds dependents that accepted the change of a dependency
	// and therefore stop the walk.
	accepting    []*Module
	acceptingSet map[string]struct{}

	visited map[string]struct{} // key is path

	// triggers records, per dependent id, which of its dependencies changed.
	triggers map[string][]string
}

func newPropagation(registry *Registry) *propagation {
	return &propagation{
		registry:     registry,
		outdatedSet:  make(map[string]struct{}),
		acceptingSet: make(map[string]struct{}),
		visited:      make(map[string]struct{}),
		triggers:     make(map[string][]string),
	}
}

// propagate walks reverse-dependency edges starting at changed. An abort
// error leaves nothing modified: the walk only reads the registry.
func propagate(registry *Registry, changed *Module) (*propagation, error) {
	p := newPropagation(registry)
	if err := p.visit(changed, true); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *propagation) visit(mod *Module, root bool) error {
	if _, seen := p.visited[mod.Path]; seen {
		return nil
	}
	p.visited[mod.Path] = struct{}{}

	if mod.selfDeclined() {
		return SelfDeclineAbortError{ID: mod.ID}
	}

	if !root && mod.Initialized() {
		p.markOutdated(mod)
		// A self-accepting ancestor re-runs itself and absorbs the change.
		if mod.selfAccepted() {
			return nil
		}
	}

	for _, parent := range p.registry.FindDependents(mod.Path) {
		if !mod.IsPlaceholder() {
			if parent.declines(mod.ID) {
				return DependencyDeclineAbortError{Dependent: parent.ID, Dependency: mod.ID}
			}
			p.addTrigger(parent.ID, mod.ID)
			if parent.accepts(mod.ID) {
				p.markAccepting(parent)
				continue
			}
		}
		if err := p.visit(parent, false); err != nil {
			return err
		}
	}
	return nil
}

func (p *propagation) markOutdated(mod *Module) {
	if _, ok := p.outdatedSet[mod.ID]; ok {
		return
	}
	p.outdatedSet[mod.ID] = struct{}{}
	p.outdated = append(p.outdated, mod)
}

func (p *propagation) markAccepting(mod *Module) {
	if _, ok := p.acceptingSet[mod.ID]; ok {
		return
	}
	p.acceptingSet[mod.ID] = struct{}{}
	p.accepting = append(p.accepting, mod)
}

func (p *propagation) addTrigger(dependent, dependency string) {
	for _, existing := range p.triggers[dependent] {
		if existing == dependency {
			return
		}
	}
	p.triggers[dependent] = append(p.triggers[dependent], dependency)
}

// OutdatedIDs returns the ids of the outdated modules in discovery order.
func (p *propagation) OutdatedIDs() []string {
	ids := make([]string, 0, len(p.outdated))
	for _, mod := range p.outdated {
		ids = append(ids, mod.ID)
	}
	return ids
}
