// Package orchestrator runs named stages in dependency order. Stages form a
// static graph of ordering edges; composite targets group stages (and other
// composites). Running a target expands it to its member stages and applies
// only the edges between members, so independent stages run concurrently.
package orchestrator

import (
	"errors"
	"fmt"
	"sort"

	"github.com/AtomWave/AW-converter-2-0/internal/pipeline"
)

// Target names beyond the individual stages.
const (
	TargetFonts = "fonts"
	TargetBuild = "build"

	// DefaultTarget runs when no target is named.
	DefaultTarget = TargetBuild
)

// ErrUnknownTarget is returned for a name that is neither a stage nor a
// composite.
var ErrUnknownTarget = errors.New("unknown target")

// Graph holds stages with their ordering edges and composite targets.
type Graph struct {
	order      []string            // stage declaration order
	after      map[string][]string // stage -> stages it runs after
	composites map[string][]string // composite -> members
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		after:      make(map[string][]string),
		composites: make(map[string][]string),
	}
}

// DefaultGraph returns the asset build graph:
//
//	clean
//	optimizeImages  after clean
//	otf2ttf         after clean
//	ttf2woff        after otf2ttf
//	ttf2woff2       after otf2ttf
//	fonts = otf2ttf, ttf2woff, ttf2woff2
//	build = clean, optimizeImages, fonts
func DefaultGraph() *Graph {
	g := NewGraph()
	g.AddStage(pipeline.StageClean)
	g.AddStage(pipeline.StageOptimizeImages, pipeline.StageClean)
	g.AddStage(pipeline.StageOtf2Ttf, pipeline.StageClean)
	g.AddStage(pipeline.StageTtf2Woff, pipeline.StageOtf2Ttf)
	g.AddStage(pipeline.StageTtf2Woff2, pipeline.StageOtf2Ttf)
	g.AddComposite(TargetFonts, pipeline.StageOtf2Ttf, pipeline.StageTtf2Woff, pipeline.StageTtf2Woff2)
	g.AddComposite(TargetBuild, pipeline.StageClean, pipeline.StageOptimizeImages, TargetFonts)
	return g
}

// AddStage declares a stage that runs after the given stages whenever both
// are part of the same run. Redeclaring a stage replaces its edges.
func (g *Graph) AddStage(name string, after ...string) {
	if _, ok := g.after[name]; !ok {
		g.order = append(g.order, name)
	}
	g.after[name] = append([]string(nil), after...)
}

// AddComposite declares a target made of stages or other composites.
func (g *Graph) AddComposite(name string, members ...string) {
	g.composites[name] = append([]string(nil), members...)
}

// Stages returns the stage names in declaration order.
func (g *Graph) Stages() []string {
	return append([]string(nil), g.order...)
}

// Targets returns every runnable name: stages in declaration order followed
// by composites sorted by name.
func (g *Graph) Targets() []string {
	out := g.Stages()
	var comps []string
	for name := range g.composites {
		comps = append(comps, name)
	}
	sort.Strings(comps)
	return append(out, comps...)
}

// After returns the stages name runs after.
func (g *Graph) After(name string) []string {
	return append([]string(nil), g.after[name]...)
}

// Expand resolves target to its member stages in declaration order.
func (g *Graph) Expand(target string) ([]string, error) {
	set := make(map[string]bool)
	if err := g.expand(target, set, map[string]bool{}); err != nil {
		return nil, err
	}
	var members []string
	for _, s := range g.order {
		if set[s] {
			members = append(members, s)
		}
	}
	return members, nil
}

func (g *Graph) expand(name string, set, visiting map[string]bool) error {
	if _, ok := g.after[name]; ok {
		set[name] = true
		return nil
	}
	members, ok := g.composites[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTarget, name)
	}
	if visiting[name] {
		return fmt.Errorf("composite %q includes itself", name)
	}
	visiting[name] = true
	defer delete(visiting, name)
	for _, m := range members {
		if err := g.expand(m, set, visiting); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks that every edge names a declared stage, every composite
// member exists, and the stage edges are acyclic.
func (g *Graph) Validate() error {
	for _, s := range g.order {
		for _, dep := range g.after[s] {
			if _, ok := g.after[dep]; !ok {
				return fmt.Errorf("stage %q runs after undeclared stage %q", s, dep)
			}
		}
	}
	for name := range g.composites {
		if _, err := g.Expand(name); err != nil {
			return err
		}
	}

	// Depth-first search with a temporary mark for the current path.
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)
	var visit func(string) error
	visit = func(s string) error {
		if permanent[s] {
			return nil
		}
		if temporary[s] {
			return fmt.Errorf("cycle detected involving stage %q", s)
		}
		temporary[s] = true
		for _, dep := range g.after[s] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		delete(temporary, s)
		permanent[s] = true
		return nil
	}
	for _, s := range g.order {
		if err := visit(s); err != nil {
			return err
		}
	}
	return nil
}
