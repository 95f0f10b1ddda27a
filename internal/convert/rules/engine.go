package rules

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/levelport/internal/diag"
	"github.com/cory-johannsen/levelport/internal/t3d/scene"
)

// Engine applies a Ruleset to actors.
type Engine struct {
	rules  *Ruleset
	logger *zap.Logger
}

// NewEngine creates an Engine.
//
// Precondition: rs must be non-nil.
func NewEngine(rs *Ruleset, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{rules: rs, logger: logger}
}

// Rules returns the engine's rule set.
func (e *Engine) Rules() *Ruleset { return e.rules }

// Convert converts one actor. The input actor is not modified.
//
// Postcondition: returns no actors when a rule drops the actor, one actor
// for an ordinary conversion, several when a rule splits it. Every dropped
// actor or property has exactly one diagnostic in c.Diags.
func (e *Engine) Convert(c *Context, a *scene.Actor) []*scene.Actor {
	out := a.Clone()
	class := out.Class()
	label := actorLabel(a)

	chain, match := e.rules.Chain(class, c.Pair)
	if match == MatchNone {
		switch {
		case !c.Pair.Identity():
			c.Diags.Warn(diag.KindRuleGap, a.Line, "no rule for class %s (%s); %s passed through unchanged", class, c.Pair, label)
		case !e.rules.hierarchy.Known(class):
			c.Diags.Warn(diag.KindRuleGap, a.Line, "unknown class %s (%s); %s passed through unchanged", class, c.Pair, label)
		}
		return []*scene.Actor{out}
	}
	if match == MatchWildcard && !e.rules.hierarchy.Known(class) {
		c.Diags.Warn(diag.KindRuleGap, a.Line, "unknown class %s (%s); %s converted with generic rules only", class, c.Pair, label)
	}

	selected := chain[0]
	if selected.Drop {
		c.Diags.Info(diag.KindDropped, a.Line, "%s dropped: %s", label, reasonOr(selected.DropReason, "no equivalent in "+c.Pair.Target.String()))
		return nil
	}

	e.applyProperties(c, chain, a, out)

	if selected.RenameClass != "" {
		out.SetClass(selected.RenameClass)
	}
	if selected.Transform == nil {
		return []*scene.Actor{out}
	}

	results, err := selected.Transform(c, out)
	if err != nil {
		c.Diags.Warn(diag.KindRuleGap, a.Line, "transform for %s failed: %v; kept after property rules", label, err)
		return []*scene.Actor{out}
	}
	if len(results) == 0 {
		c.Diags.Info(diag.KindDropped, a.Line, "%s dropped by %s transform", label, selected.Class)
	}
	return results
}

func (e *Engine) applyProperties(c *Context, chain []*Rule, src, out *scene.Actor) {
	class := out.Class()
	// A source property that a later rename overwrites is reported once,
	// as replaced, and gets no rule of its own. Properties that are dropped
	// or renamed away before the rename runs are not overwritten.
	props := src.Properties()
	replacedBy := make(map[string]string)
	for i, p := range props {
		pr, ok := propertyRule(chain, p.Name)
		if !ok || pr.Drop || pr.Rename == "" || strings.EqualFold(pr.Rename, p.Name) {
			continue
		}
		target := strings.ToLower(pr.Rename)
		if _, seen := replacedBy[target]; seen {
			continue
		}
		for _, earlier := range props[:i] {
			if !strings.EqualFold(earlier.Name, pr.Rename) || movesAway(chain, earlier.Name) {
				continue
			}
			replacedBy[target] = p.Name
		}
	}
	pending := maps.Clone(replacedBy)

	for _, p := range props {
		if by, ok := replacedBy[strings.ToLower(p.Name)]; ok {
			c.Diags.Info(diag.KindDropped, p.Line, "property %s of %s replaced by renamed %s", p.Name, class, by)
			continue
		}
		pr, ok := propertyRule(chain, p.Name)
		if !ok {
			if !c.Pair.Identity() {
				c.Diags.Warn(diag.KindRuleGap, p.Line, "property %s of %s has no rule for %s; kept as-is", p.Name, class, c.Pair)
			}
			continue
		}
		if pr.Drop {
			out.Remove(p.Name)
			c.Diags.Info(diag.KindDropped, p.Line, "property %s of %s dropped: %s", p.Name, class, reasonOr(pr.Reason, "no equivalent"))
			continue
		}
		if pr.Convert != nil {
			v, err := convertValue(c, pr.Convert, p.Value)
			if err != nil {
				c.Diags.Warn(diag.KindRuleGap, p.Line, "property %s of %s: %v; kept as-is", p.Name, class, err)
			} else {
				out.Set(p.Name, v)
			}
		}
		if pr.Rename != "" && !strings.EqualFold(pr.Rename, p.Name) {
			if old, clash := out.Property(pr.Rename); clash {
				if _, reported := pending[strings.ToLower(old.Name)]; reported {
					delete(pending, strings.ToLower(old.Name))
				} else {
					c.Diags.Info(diag.KindDropped, old.Line, "property %s of %s replaced by renamed %s", old.Name, class, p.Name)
				}
			}
			out.Rename(p.Name, pr.Rename)
		}
	}
}

// movesAway reports whether the rule for name drops it or renames it.
func movesAway(chain []*Rule, name string) bool {
	pr, ok := propertyRule(chain, name)
	return ok && (pr.Drop || (pr.Rename != "" && !strings.EqualFold(pr.Rename, name)))
}

// convertValue applies conv to a scalar value or to every element of an
// indexed value.
func convertValue(c *Context, conv ValueConverter, v scene.Value) (scene.Value, error) {
	if v.Kind != scene.ValueArray {
		return conv(c, v)
	}
	out := v.Clone()
	for i, el := range out.Elements {
		nv, err := conv(c, el.Value)
		if err != nil {
			return scene.Value{}, fmt.Errorf("element %d: %w", el.Index, err)
		}
		out.Elements[i].Value = nv
	}
	return out, nil
}

// ConvertDocument converts every actor in doc, recursing through container
// blocks such as Map and Level. Cancellation is checked before each actor.
//
// Postcondition: on cancellation returns the nodes converted so far and an
// error wrapping ctx.Err(); doc itself is never modified.
func (e *Engine) ConvertDocument(ctx context.Context, c *Context, doc *scene.Document) (*scene.Document, error) {
	out := &scene.Document{Header: scene.Header{
		Generation: c.Pair.Target,
		Preamble:   append([]string(nil), doc.Header.Preamble...),
	}}
	doc.Walk(func(a *scene.Actor) bool {
		c.Reserve(a.Name())
		return true
	})
	nodes, err := e.convertNodes(ctx, c, doc.Nodes)
	out.Nodes = nodes
	if err != nil {
		return out, err
	}
	e.logger.Debug("document converted",
		zap.String("pair", c.Pair.String()),
		zap.Int("actors_in", len(doc.Actors())),
		zap.Int("actors_out", len(out.Actors())),
	)
	return out, nil
}

func (e *Engine) convertNodes(ctx context.Context, c *Context, nodes []*scene.Actor) ([]*scene.Actor, error) {
	var out []*scene.Actor
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("converting actors: %w", err)
		}
		if n.IsActor() {
			out = append(out, e.Convert(c, n)...)
			continue
		}
		container := n.Clone()
		children, err := e.convertNodes(ctx, c, n.Children)
		container.Children = children
		out = append(out, container)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func actorLabel(a *scene.Actor) string {
	if name := a.Name(); name != "" {
		return "actor " + name
	}
	return "actor at line " + fmt.Sprint(a.Line)
}

func reasonOr(reason, fallback string) string {
	if reason == "" {
		return fallback
	}
	return reason
}
