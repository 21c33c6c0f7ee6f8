package property

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/magiconair/properties"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/mslinn/bm-console/pkg/names"
)

const (
	keyInheritance     = "inheritance"
	defaultInheritance = "common"
	suffixDefault      = ".default"
)

// Loader reads property definitions for a test from a YAML list or a
// Java-style properties file.
type Loader struct {
	Logger *zap.SugaredLogger
}

// NewLoader returns a Loader logging to logger (nil disables logging)
func NewLoader(logger *zap.SugaredLogger) *Loader {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Loader{Logger: logger}
}

// Load reads the definitions in path, choosing the format by extension.
// Properties with illegal names are skipped and reported in the returned
// error alongside the definitions that did load.
func (l *Loader) Load(path string) ([]*Descriptor, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read definitions: %w", err)
		}
		return l.ParseYAML(data)
	case ".properties":
		p, err := properties.LoadFile(path, properties.UTF8)
		if err != nil {
			return nil, fmt.Errorf("failed to read definitions: %w", err)
		}
		return l.ParseProperties(p)
	}
	return nil, fmt.Errorf("unsupported definitions file '%s' (use .yaml, .yml or .properties)", path)
}

// ParseYAML decodes a YAML list of descriptors
func (l *Loader) ParseYAML(data []byte) ([]*Descriptor, error) {
	var defs []*Descriptor
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse definitions: %w", err)
	}

	var result *multierror.Error
	kept := make([]*Descriptor, 0, len(defs))
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if err := names.ValidatePropertyName(d.Name); err != nil {
			l.Logger.Errorf("Ignoring property: %v", err)
			result = multierror.Append(result, err)
			continue
		}
		if seen[d.Name] {
			result = multierror.Append(result, fmt.Errorf("duplicate property '%s'", d.Name))
			continue
		}
		seen[d.Name] = true
		d.Origin = OriginDefaults
		kept = append(kept, d)
	}
	sortDefinitions(kept)
	return kept, result.ErrorOrNil()
}

// ParseProperties builds descriptors from keys of the form
// <project>.<property>.<field>. A property exists when some project gives
// it a default; projects are applied in inheritance order, later ones
// overriding earlier ones.
func (l *Loader) ParseProperties(p *properties.Properties) ([]*Descriptor, error) {
	// ${...} values are deferred references, resolved at run time
	p.DisableExpansion = true

	propNames, projects := l.scanDeclarations(p)
	inheritance := l.inheritance(p, projects)

	var result *multierror.Error
	defs := make([]*Descriptor, 0, len(propNames))
	for _, name := range propNames {
		if err := names.ValidatePropertyName(name); err != nil {
			l.Logger.Errorf("Ignoring property: %v", err)
			result = multierror.Append(result, err)
			continue
		}
		defs = append(defs, l.buildProperty(p, name, inheritance))
	}
	sortDefinitions(defs)
	return defs, result.ErrorOrNil()
}

func (l *Loader) scanDeclarations(p *properties.Properties) (propNames, projects []string) {
	seenProps := make(map[string]bool)
	seenProjects := make(map[string]bool)
	for _, key := range p.Keys() {
		if !strings.HasSuffix(key, suffixDefault) {
			continue
		}
		projectEnd := strings.Index(key, ".")
		propEnd := len(key) - len(suffixDefault)
		if projectEnd < 1 || propEnd-projectEnd-1 < 1 {
			l.Logger.Debugf("Ignoring property: %s", key)
			continue
		}
		project := key[:projectEnd]
		prop := key[projectEnd+1 : propEnd]
		if !seenProjects[project] {
			seenProjects[project] = true
			projects = append(projects, project)
		}
		if !seenProps[prop] {
			seenProps[prop] = true
			propNames = append(propNames, prop)
		}
	}
	slices.Sort(projects)
	return propNames, projects
}

func (l *Loader) inheritance(p *properties.Properties, projects []string) []string {
	declared := p.GetString(keyInheritance, defaultInheritance)
	var order []string
	listed := make(map[string]bool)
	for _, project := range strings.Split(declared, ".") {
		if project == "" || listed[project] {
			continue
		}
		listed[project] = true
		order = append(order, project)
	}
	var missing []string
	for _, project := range projects {
		if !listed[project] {
			missing = append(missing, project)
			order = append(order, project)
		}
	}
	if len(missing) > 0 {
		l.Logger.Warnf("The property inheritance has not been explicitly defined for projects %v; using %v", missing, order)
	}
	return order
}

func (l *Loader) buildProperty(p *properties.Properties, name string, inheritance []string) *Descriptor {
	d := &Descriptor{Name: name, Title: name, Origin: OriginDefaults}
	for _, project := range inheritance {
		get := func(field string) (string, bool) {
			return p.Get(project + "." + name + "." + field)
		}
		if v, ok := get("type"); ok {
			d.Type = StringPtr(strings.ToLower(strings.TrimSpace(v)))
		}
		if v, ok := get("default"); ok {
			d.Default = StringValue(v)
		}
		if v, ok := get("title"); ok {
			d.Title = v
		}
		if v, ok := get("group"); ok {
			d.Group = v
		}
		if v, ok := get("description"); ok {
			d.Description = v
		}
		if v, ok := get("validation"); ok {
			d.Validation = StringPtr(v)
		}
		if v, ok := get("choice"); ok {
			d.Choice = StringPtr(v)
		}
		if v, ok := get("regex"); ok {
			d.Regex = StringPtr(v)
		}
		if v, ok := get("min"); ok {
			d.Min = StringValue(v)
		}
		if v, ok := get("max"); ok {
			d.Max = StringValue(v)
		}
		if v, ok := get("hide"); ok {
			d.Hide = strings.EqualFold(strings.TrimSpace(v), "true")
		}
		if v, ok := get("mask"); ok {
			d.Mask = strings.EqualFold(strings.TrimSpace(v), "true")
		}
	}
	if kind, ok := d.Kind(); !ok || kind == KindUnknown {
		l.Logger.Warnf("Assuming 'string' as type for %s", name)
		d.Type = StringPtr(KindString.String())
	}
	return d
}

func sortDefinitions(defs []*Descriptor) {
	slices.SortStableFunc(defs, func(a, b *Descriptor) int {
		return cmp.Or(cmp.Compare(a.Group, b.Group), cmp.Compare(a.Name, b.Name))
	})
}
