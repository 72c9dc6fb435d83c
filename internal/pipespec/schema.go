package pipespec

import (
	"errors"
	"fmt"

	"github.com/hashicorp/hcl/v2"
)

// File is the decoded top level of a pipeline definition file.
type File struct {
	Pipelines []*Pipeline `hcl:"pipeline,block"`
	Remain    hcl.Body    `hcl:",remain"`
}

// Pipeline declares a named stage graph.
type Pipeline struct {
	Name   string   `hcl:"name,label"`
	Stages []*Stage `hcl:"stage,block"`
}

// Stage declares one step of the graph: the operation it runs, the stages
// whose outputs it consumes, and options passed to the operation's
// constructor.
type Stage struct {
	Name      string        `hcl:"name,label"`
	Op        string        `hcl:"op"`
	DependsOn []string      `hcl:"depends_on,optional"`
	Options   *StageOptions `hcl:"options,block"`
}

// StageOptions captures the free-form attribute body of an options block.
type StageOptions struct {
	Body hcl.Body `hcl:",remain"`
}

// Pipeline returns the named pipeline, or the only one when name is
// empty.
func (f *File) Pipeline(name string) (*Pipeline, error) {
	if name == "" {
		if len(f.Pipelines) != 1 {
			names := make([]string, len(f.Pipelines))
			for i, p := range f.Pipelines {
				names[i] = p.Name
			}
			return nil, fmt.Errorf("file declares %d pipelines %v, name one", len(f.Pipelines), names)
		}
		return f.Pipelines[0], nil
	}
	for _, p := range f.Pipelines {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no pipeline named %q", name)
}

// validate enforces the structural rules of one pipeline block.
func (p *Pipeline) validate() error {
	if len(p.Stages) == 0 {
		return errors.New("declares no stages")
	}
	names := make(map[string]bool, len(p.Stages))
	for _, s := range p.Stages {
		if s.Op == "" {
			return fmt.Errorf("stage %q sets no op", s.Name)
		}
		if names[s.Name] {
			return fmt.Errorf("stage %q is declared twice", s.Name)
		}
		names[s.Name] = true
	}
	for _, s := range p.Stages {
		for _, dep := range s.DependsOn {
			if dep == s.Name {
				return fmt.Errorf("stage %q depends on itself", s.Name)
			}
			if !names[dep] {
				return fmt.Errorf("stage %q depends on unknown stage %q", s.Name, dep)
			}
		}
	}
	return nil
}
