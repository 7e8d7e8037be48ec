package domain

import (
	"reflect"
	"testing"
)

func TestDependencyGraph_DetectCycle(t *testing.T) {
	tests := []struct {
		name  string
		graph DependencyGraph
		want  []string
	}{
		{"empty", DependencyGraph{}, nil},
		{"chain", DependencyGraph{"a": nil, "b": {"a"}, "c": {"b"}}, nil},
		{"diamond", DependencyGraph{"a": nil, "b": {"a"}, "c": {"a"}, "d": {"b", "c"}}, nil},
		{"self loop", DependencyGraph{"a": {"a"}}, []string{"a", "a"}},
		{"two nodes", DependencyGraph{"a": {"b"}, "b": {"a"}}, []string{"a", "b", "a"}},
		{"three nodes", DependencyGraph{"a": {"c"}, "b": {"a"}, "c": {"b"}}, []string{"a", "c", "b", "a"}},
		{"dangling edge ignored", DependencyGraph{"a": {"ghost"}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.graph.DetectCycle()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DetectCycle() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewDependencyGraph(t *testing.T) {
	tasks := []*Task{
		{ID: "a"},
		{ID: "b", DependsOn: []string{"a"}},
	}

	g := NewDependencyGraph(tasks)
	g["b"][0] = "x"

	if tasks[1].DependsOn[0] != "a" {
		t.Error("graph must not share memory with tasks")
	}
	if _, ok := g["a"]; !ok {
		t.Error("graph must contain tasks without dependencies")
	}
}
