package domain

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Plan is a batch of tasks with symbolic dependencies, imported from YAML.
//
// Format:
//
//	session:
//	  name: Acme Corp profile
//	  research_type: company_profile
//	  target: acme.example
//	tasks:
//	  - key: scrape
//	    title: Scrape company website
//	    type: web_scrape
//	  - key: summarize
//	    title: Summarize findings
//	    type: analysis
//	    depends_on: [scrape]
//
// A plan either names an existing session (session_id) or describes a new one.
type Plan struct {
	Session   *PlanSession `yaml:"session"`
	SessionID string       `yaml:"session_id"`
	Tasks     []PlanTask   `yaml:"tasks"`
}

// PlanSession describes the session created by a plan.
type PlanSession struct {
	Name         string `yaml:"name"`
	ResearchType string `yaml:"research_type"`
	Target       string `yaml:"target"`
}

// PlanTask is one task of a plan. DependsOn holds keys of other plan tasks.
// Fields are ordered to minimize memory padding.
type PlanTask struct {
	MaxRetries  *int     `yaml:"max_retries"`
	Key         string   `yaml:"key"`
	Title       string   `yaml:"title"`
	TaskType    string   `yaml:"type"`
	Description string   `yaml:"description"`
	DependsOn   []string `yaml:"depends_on"`
}

// ParsePlan decodes and validates a YAML plan.
// Keys must be unique, dependencies must reference plan keys, and the
// dependency graph must be acyclic. Nothing is written.
func ParsePlan(content []byte) (*Plan, error) {
	var p Plan
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: parse plan: %w", ErrValidation, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the plan's structure.
func (p *Plan) Validate() error {
	if p.SessionID == "" && (p.Session == nil || strings.TrimSpace(p.Session.Name) == "") {
		return fmt.Errorf("%w: plan needs session_id or session.name", ErrValidation)
	}
	if len(p.Tasks) == 0 {
		return fmt.Errorf("%w: plan has no tasks", ErrValidation)
	}

	keys := make(map[string]bool, len(p.Tasks))
	for i, t := range p.Tasks {
		if t.Key == "" {
			return fmt.Errorf("%w: task %d: key is required", ErrValidation, i+1)
		}
		if keys[t.Key] {
			return fmt.Errorf("%w: task %d: duplicate key %q", ErrValidation, i+1, t.Key)
		}
		if strings.TrimSpace(t.Title) == "" {
			return fmt.Errorf("%w: task %q: title is required", ErrValidation, t.Key)
		}
		if t.MaxRetries != nil && *t.MaxRetries < 0 {
			return fmt.Errorf("%w: task %q: max_retries must not be negative", ErrValidation, t.Key)
		}
		keys[t.Key] = true
	}

	graph := make(DependencyGraph, len(p.Tasks))
	for _, t := range p.Tasks {
		for _, dep := range t.DependsOn {
			if !keys[dep] {
				return fmt.Errorf("%w: task %q: unknown dependency %q", ErrValidation, t.Key, dep)
			}
		}
		graph[t.Key] = t.DependsOn
	}
	if cycle := graph.DetectCycle(); cycle != nil {
		return fmt.Errorf("%w: %s", ErrDependencyCycle, strings.Join(cycle, " -> "))
	}
	return nil
}

// CreationOrder returns the plan tasks ordered so that every task comes
// after its dependencies. Ties keep file order. The plan must be valid.
func (p *Plan) CreationOrder() []PlanTask {
	done := make(map[string]bool, len(p.Tasks))
	order := make([]PlanTask, 0, len(p.Tasks))
	for len(order) < len(p.Tasks) {
		progressed := false
		for _, t := range p.Tasks {
			if done[t.Key] {
				continue
			}
			ready := true
			for _, dep := range t.DependsOn {
				if !done[dep] {
					ready = false
					break
				}
			}
			if ready {
				done[t.Key] = true
				order = append(order, t)
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return order
}
