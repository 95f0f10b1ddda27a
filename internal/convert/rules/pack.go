package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/levelport/internal/scripting"
	"github.com/cory-johannsen/levelport/internal/t3d/scene"
)

// Pack is a declarative rule file. Generations accept any spelling
// scene.ParseGeneration understands; an empty generation matches any.
//
//	source: ue2
//	target: ue4
//	scripts: lua
//	hierarchy:
//	  MyLamp: Light
//	rules:
//	  - class: StaticMesh
//	    rename_class: Mesh
//	    script: convert_mesh
//	    properties:
//	      - name: StaticMesh
//	        rename: Mesh
//	      - name: Brightness
//	        convert: multiply
//	        factor: 8
type Pack struct {
	Source    string            `yaml:"source"`
	Target    string            `yaml:"target"`
	Scripts   string            `yaml:"scripts"`
	Hierarchy map[string]string `yaml:"hierarchy"`
	Rules     []PackRule        `yaml:"rules"`

	name string
	dir  string
}

// PackRule is the YAML form of a Rule.
type PackRule struct {
	Class       string         `yaml:"class"`
	Source      string         `yaml:"source"`
	Target      string         `yaml:"target"`
	RenameClass string         `yaml:"rename_class"`
	Drop        bool           `yaml:"drop"`
	DropReason  string         `yaml:"drop_reason"`
	Script      string         `yaml:"script"`
	Properties  []PackProperty `yaml:"properties"`
}

// PackProperty is the YAML form of a PropertyRule. Convert names one of
// scale, rotator_degrees, multiply, scaled_multiply or enum.
type PackProperty struct {
	Name    string            `yaml:"name"`
	Rename  string            `yaml:"rename"`
	Drop    bool              `yaml:"drop"`
	Reason  string            `yaml:"reason"`
	Convert string            `yaml:"convert"`
	Factor  float64           `yaml:"factor"`
	Map     map[string]string `yaml:"map"`
}

// Name returns the pack name: its file name without extension.
func (p *Pack) Name() string { return p.name }

// LoadPack reads one rule pack file.
//
// Precondition: path must be a readable YAML file.
// Postcondition: returns the parsed pack or a non-nil error.
func LoadPack(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var p Pack
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing rule pack %s: %w", path, err)
	}
	base := filepath.Base(path)
	p.name = strings.TrimSuffix(base, filepath.Ext(base))
	p.dir = filepath.Dir(path)
	return &p, nil
}

// LoadPacks reads every .yaml or .yml file in dir, sorted by name so later
// packs override earlier ones deterministically.
//
// Precondition: dir must be a readable directory path.
func LoadPacks(dir string) ([]*Pack, error) {
	files, err := yamlFiles(dir)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	packs := make([]*Pack, 0, len(files))
	for _, path := range files {
		p, err := LoadPack(path)
		if err != nil {
			return nil, err
		}
		packs = append(packs, p)
	}
	return packs, nil
}

func yamlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	return paths, nil
}

func parseOptionalGeneration(s, fallback string) (scene.Generation, error) {
	if s == "" {
		s = fallback
	}
	if s == "" || s == Wildcard {
		return scene.GenUnknown, nil
	}
	return scene.ParseGeneration(s)
}

// Apply adds the pack's hierarchy entries and rules to rs. Rules naming a
// script are bound to scripts; when the pack has a scripts directory it is
// loaded into scripts under the pack's name first.
//
// Precondition: scripts may be nil only when no rule names a script.
// Postcondition: on error rs may hold a prefix of the pack's rules.
func (p *Pack) Apply(rs *Ruleset, scripts *scripting.Manager, instLimit int) error {
	classes := make([]string, 0, len(p.Hierarchy))
	for class := range p.Hierarchy {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	for _, class := range classes {
		rs.Hierarchy().Set(class, p.Hierarchy[class])
	}

	if p.Scripts != "" {
		if scripts == nil {
			return fmt.Errorf("rule pack %s: scripts configured without a script manager", p.name)
		}
		dir := p.Scripts
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(p.dir, dir)
		}
		if err := scripts.LoadPack(p.name, dir, instLimit); err != nil {
			return fmt.Errorf("rule pack %s: %w", p.name, err)
		}
	}

	for i, pr := range p.Rules {
		r, err := p.rule(pr, scripts)
		if err != nil {
			return fmt.Errorf("rule pack %s: rule %d (%s): %w", p.name, i, pr.Class, err)
		}
		rs.Add(r)
	}
	return nil
}

func (p *Pack) rule(pr PackRule, scripts *scripting.Manager) (*Rule, error) {
	if pr.Class == "" {
		return nil, fmt.Errorf("class is required")
	}
	src, err := parseOptionalGeneration(pr.Source, p.Source)
	if err != nil {
		return nil, err
	}
	dst, err := parseOptionalGeneration(pr.Target, p.Target)
	if err != nil {
		return nil, err
	}
	r := &Rule{
		Class:       pr.Class,
		Source:      src,
		Target:      dst,
		RenameClass: pr.RenameClass,
		Drop:        pr.Drop,
		DropReason:  pr.DropReason,
		Origin:      p.name,
	}
	for _, pp := range pr.Properties {
		prop, err := pp.rule()
		if err != nil {
			return nil, err
		}
		r.Properties = append(r.Properties, prop)
	}
	if pr.Script != "" {
		if scripts == nil {
			return nil, fmt.Errorf("script %q needs a script manager", pr.Script)
		}
		r.Transform = ScriptTransform(scripts, p.name, pr.Script)
	}
	return r, nil
}

func (pp PackProperty) rule() (PropertyRule, error) {
	if pp.Name == "" {
		return PropertyRule{}, fmt.Errorf("property name is required")
	}
	out := PropertyRule{Name: pp.Name, Rename: pp.Rename, Drop: pp.Drop, Reason: pp.Reason}
	switch strings.ToLower(pp.Convert) {
	case "":
	case "scale":
		out.Convert = ScaleVector()
	case "rotator_degrees":
		out.Convert = RotatorToDegrees()
	case "multiply":
		if pp.Factor == 0 {
			return PropertyRule{}, fmt.Errorf("property %s: multiply needs a non-zero factor", pp.Name)
		}
		out.Convert = Multiply(pp.Factor)
	case "scaled_multiply":
		if pp.Factor == 0 {
			return PropertyRule{}, fmt.Errorf("property %s: scaled_multiply needs a non-zero factor", pp.Name)
		}
		out.Convert = ScaledMultiply(pp.Factor)
	case "enum":
		if len(pp.Map) == 0 {
			return PropertyRule{}, fmt.Errorf("property %s: enum needs a map", pp.Name)
		}
		out.Convert = EnumMap(pp.Map)
	default:
		return PropertyRule{}, fmt.Errorf("property %s: unknown converter %q", pp.Name, pp.Convert)
	}
	return out, nil
}

// LoadRuleset builds the built-in rules and layers every pack in dir over
// them. An empty dir returns the built-in rules alone.
func LoadRuleset(dir string, scripts *scripting.Manager, instLimit int) (*Ruleset, error) {
	rs := DefaultRuleset()
	if dir == "" {
		return rs, nil
	}
	packs, err := LoadPacks(dir)
	if err != nil {
		return nil, err
	}
	for _, p := range packs {
		if err := p.Apply(rs, scripts, instLimit); err != nil {
			return nil, err
		}
	}
	return rs, nil
}
