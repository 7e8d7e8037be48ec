package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanRunWithoutStore(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want bool
	}{
		{name: "no args", args: nil, want: true},
		{name: "help flag", args: []string{"--help"}, want: true},
		{name: "short help on subcommand", args: []string{"task", "new", "-h"}, want: true},
		{name: "version flag", args: []string{"--version"}, want: true},
		{name: "help subcommand", args: []string{"help", "task"}, want: true},
		{name: "config template", args: []string{"config", "template"}, want: true},
		{name: "config show", args: []string{"config", "show"}, want: false},
		{name: "task list", args: []string{"task", "list", "s1"}, want: false},
		{name: "init", args: []string{"init"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, canRunWithoutStore(tt.args))
		})
	}
}

func TestDataDirFromArgs(t *testing.T) {
	tests := []struct {
		name string
		want string
		args []string
	}{
		{name: "absent", args: []string{"task", "list", "s1"}, want: ""},
		{name: "separate value", args: []string{"--data-dir", "/tmp/rc", "init"}, want: "/tmp/rc"},
		{name: "equals form", args: []string{"init", "--data-dir=/tmp/rc"}, want: "/tmp/rc"},
		{name: "missing value", args: []string{"init", "--data-dir"}, want: ""},
		{name: "after terminator", args: []string{"task", "new", "--", "--data-dir", "x"}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dataDirFromArgs(tt.args))
		})
	}
}
