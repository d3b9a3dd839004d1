package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"

	"github.com/SanteonNL/ehealth-ingest/lib/payload"
	"github.com/SanteonNL/ehealth-ingest/normalize"
	"github.com/SanteonNL/ehealth-ingest/partition"
	"github.com/SanteonNL/ehealth-ingest/resolve"
	"github.com/SanteonNL/ehealth-ingest/schema"
	"gopkg.in/yaml.v3"
)

// Definition is the YAML form of an Entity:
//
//	name: division
//	policy: strict
//	source: /api/divisions
//	renames:
//	  id: uuid
//	  legal_entity.id: uuid
//	recurse: [addresses]
//	rules:
//	  - path: uuid
//	    constraints: [required, {format: uuid}]
//	foreign_keys:
//	  - {path: legal_entity_id, target: legal_entity}
//	partition:
//	  groups: [{name: addresses, fields: [{path: addresses, as: "."}]}]
//	  remainder: division
type Definition struct {
	Name        string               `yaml:"name"`
	Policy      Policy               `yaml:"policy"`
	Source      string               `yaml:"source"`
	Renames     map[string]string    `yaml:"renames"`
	Recurse     []string             `yaml:"recurse"`
	Rules       []RuleDefinition     `yaml:"rules"`
	ForeignKeys []resolve.ForeignKey `yaml:"foreign_keys"`
	Partition   partition.Spec       `yaml:"partition"`
}

type RuleDefinition struct {
	Path        string                 `yaml:"path"`
	Constraints []ConstraintDefinition `yaml:"constraints"`
}

// ConstraintDefinition is either a bare name (required, not_null) or a single-key mapping of a constraint name
// to its argument, e.g. {format: date}, {enum: [A, B]}, {min_items: 1}, {required_if: {field: type, equals: [X]}}.
type ConstraintDefinition struct {
	constraint schema.Constraint
}

func (c *ConstraintDefinition) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		switch node.Value {
		case schema.ConstraintRequired:
			c.constraint = schema.Required()
		case schema.ConstraintNotNull:
			c.constraint = schema.NotNull()
		default:
			return fmt.Errorf("line %d: constraint %q requires an argument", node.Line, node.Value)
		}
		return nil
	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return fmt.Errorf("line %d: constraint must have exactly one key", node.Line)
		}
		constraint, err := parseConstraint(node.Content[0].Value, node.Content[1])
		if err != nil {
			return fmt.Errorf("line %d: %s: %w", node.Line, node.Content[0].Value, err)
		}
		c.constraint = constraint
		return nil
	}
	return fmt.Errorf("line %d: constraint must be a name or a mapping", node.Line)
}

func parseConstraint(name string, arg *yaml.Node) (schema.Constraint, error) {
	var strs []string
	if arg.Kind == yaml.SequenceNode {
		if err := arg.Decode(&strs); err != nil {
			return schema.Constraint{}, err
		}
	} else if arg.Kind == yaml.ScalarNode {
		strs = []string{arg.Value}
	}
	switch name {
	case schema.ConstraintType:
		for _, typeName := range strs {
			if typeName == "integer" {
				continue
			}
			if _, err := payload.ParseKind(typeName); err != nil {
				return schema.Constraint{}, fmt.Errorf("unknown type: %s", typeName)
			}
		}
		return schema.Type(strs...), nil
	case schema.ConstraintFormat:
		if len(strs) != 1 {
			return schema.Constraint{}, errors.New("expected a single format name")
		}
		if _, ok := schema.Formats[strs[0]]; !ok {
			return schema.Constraint{}, fmt.Errorf("unknown format: %s", strs[0])
		}
		return schema.Format(strs[0]), nil
	case schema.ConstraintEnum:
		if len(strs) == 0 {
			return schema.Constraint{}, errors.New("expected at least one value")
		}
		return schema.Enum(strs...), nil
	case schema.ConstraintDictionary:
		if len(strs) != 1 {
			return schema.Constraint{}, errors.New("expected a single dictionary name")
		}
		return schema.InDictionary(strs[0]), nil
	case schema.ConstraintMinItems:
		if len(strs) != 1 {
			return schema.Constraint{}, errors.New("expected a number")
		}
		n, err := strconv.Atoi(strs[0])
		if err != nil {
			return schema.Constraint{}, err
		}
		return schema.MinItems(n), nil
	case schema.ConstraintPattern:
		if len(strs) != 1 {
			return schema.Constraint{}, errors.New("expected a single expression")
		}
		return schema.Pattern(strs[0])
	case "required_if":
		var condition struct {
			Field  string   `yaml:"field"`
			Equals []string `yaml:"equals"`
		}
		if err := arg.Decode(&condition); err != nil {
			return schema.Constraint{}, err
		}
		if condition.Field == "" {
			return schema.Constraint{}, errors.New("field is required")
		}
		return schema.RequiredIf(condition.Field, condition.Equals...), nil
	}
	return schema.Constraint{}, errors.New("unknown constraint")
}

// Entity converts the definition into a validated Entity.
func (d Definition) Entity() (Entity, error) {
	result := Entity{
		Name:        d.Name,
		ForeignKeys: d.ForeignKeys,
		Partition:   d.Partition,
		Policy:      d.Policy,
		Source:      d.Source,
	}
	if len(d.Renames) > 0 || len(d.Recurse) > 0 {
		table, err := normalize.ParseTable(d.Renames, d.Recurse)
		if err != nil {
			return Entity{}, fmt.Errorf("entity %s: %w", d.Name, err)
		}
		result.Renames = table
	}
	for _, rule := range d.Rules {
		constraints := make([]schema.Constraint, len(rule.Constraints))
		for i, constraint := range rule.Constraints {
			constraints[i] = constraint.constraint
		}
		result.Rules = append(result.Rules, schema.Rule{Path: rule.Path, Constraints: constraints})
	}
	if err := result.Validate(); err != nil {
		return Entity{}, err
	}
	return result, nil
}

// LoadDefinitions reads every *.yaml file in the root of fsys as an entity definition, in file name order.
func LoadDefinitions(fsys fs.FS) ([]Entity, error) {
	files, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	var result []Entity
	var errs []error
	for _, file := range files {
		entity, err := loadDefinition(fsys, file)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", file, err))
			continue
		}
		result = append(result, entity)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return result, nil
}

func loadDefinition(fsys fs.FS, file string) (Entity, error) {
	data, err := fs.ReadFile(fsys, file)
	if err != nil {
		return Entity{}, err
	}
	var definition Definition
	if err := yaml.Unmarshal(data, &definition); err != nil {
		return Entity{}, err
	}
	if definition.Name == "" {
		definition.Name = trimExt(path.Base(file))
	}
	return definition.Entity()
}

func trimExt(name string) string {
	return name[:len(name)-len(path.Ext(name))]
}
