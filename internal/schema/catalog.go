package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog file format (yaml):
//
//	components:
//	  - id: 1
//	    name: transform
//	    fields:
//	      - {name: pos_x, kind: float}
//	      - {name: attached_to, kind: ref}
//	commands:
//	  - component: 1
//	    index: 1
//	    name: teleport
//	    args:
//	      - {name: target, kind: ref}

type catalogFile struct {
	Components []catalogComponent `yaml:"components"`
	Commands   []catalogCommand   `yaml:"commands"`
}

type catalogComponent struct {
	ID     uint32         `yaml:"id"`
	Name   string         `yaml:"name"`
	Offset uint32         `yaml:"offset"`
	Fields []catalogField `yaml:"fields"`
}

type catalogCommand struct {
	Component uint32         `yaml:"component"`
	Index     uint32         `yaml:"index"`
	Name      string         `yaml:"name"`
	Args      []catalogField `yaml:"args"`
}

type catalogField struct {
	Name        string `yaml:"name"`
	catalogType `yaml:",inline"`
}

type catalogType struct {
	Kind   string         `yaml:"kind"`
	Elem   *catalogType   `yaml:"elem,omitempty"`
	Fields []catalogField `yaml:"fields,omitempty"`
}

// LoadCatalog reads a component catalog and builds a registry from it.
func LoadCatalog(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cf catalogFile
	if err := yaml.Unmarshal(b, &cf); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	reg := NewRegistry()
	for _, c := range cf.Components {
		l := &Layout{ID: c.ID, Name: c.Name, Offset: c.Offset}
		for _, f := range c.Fields {
			ft, err := f.catalogType.build()
			if err != nil {
				return nil, fmt.Errorf("component %s field %s: %w", c.Name, f.Name, err)
			}
			l.Fields = append(l.Fields, Field{Name: f.Name, Type: ft})
		}
		if err := reg.Register(l); err != nil {
			return nil, err
		}
	}
	for _, c := range cf.Commands {
		args := FieldType{Kind: KindStruct}
		for _, f := range c.Args {
			ft, err := f.catalogType.build()
			if err != nil {
				return nil, fmt.Errorf("command %s arg %s: %w", c.Name, f.Name, err)
			}
			args.Fields = append(args.Fields, ft)
		}
		def := &CommandDef{ComponentID: c.Component, Index: c.Index, Name: c.Name, Args: args}
		if err := reg.RegisterCommand(def); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (t catalogType) build() (FieldType, error) {
	kind, err := kindFromString(t.Kind)
	if err != nil {
		return FieldType{}, err
	}
	ft := FieldType{Kind: kind}
	switch kind {
	case KindList:
		if t.Elem == nil {
			return FieldType{}, fmt.Errorf("list type needs elem")
		}
		elem, err := t.Elem.build()
		if err != nil {
			return FieldType{}, err
		}
		ft.Elem = &elem
	case KindStruct:
		if len(t.Fields) == 0 {
			return FieldType{}, fmt.Errorf("struct type needs fields")
		}
		for _, f := range t.Fields {
			sub, err := f.catalogType.build()
			if err != nil {
				return FieldType{}, err
			}
			ft.Fields = append(ft.Fields, sub)
		}
	}
	return ft, nil
}

func kindFromString(s string) (Kind, error) {
	switch s {
	case "int":
		return KindInt, nil
	case "float":
		return KindFloat, nil
	case "bool":
		return KindBool, nil
	case "string":
		return KindString, nil
	case "bytes":
		return KindBytes, nil
	case "ref":
		return KindRef, nil
	case "struct":
		return KindStruct, nil
	case "list":
		return KindList, nil
	}
	return 0, fmt.Errorf("unknown kind %q", s)
}
