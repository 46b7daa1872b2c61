// Package main provides tests for the structon CLI.
package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leapstack-labs/structon/internal/cli"
	"github.com/leapstack-labs/structon/internal/cli/config"
)

const beaconDoc = `{
  "identifier": "beacon",
  "kind": "atomic",
  "intent": "announce the current target",
  "version": 1,
  "stages": ["act"],
  "nodes": [
    {
      "identifier": "read_target",
      "stage": "act",
      "role": "input",
      "operation": "get",
      "args": {"key": "target", "default": "base-camp"},
      "output": "target"
    },
    {
      "identifier": "announce",
      "stage": "act",
      "role": "output",
      "operation": "emit",
      "input": "$target"
    }
  ]
}`

// newProject writes a minimal project into a temp directory and returns
// flags that anchor the CLI there.
func newProject(t *testing.T) (unitsDir string, flags []string) {
	t.Helper()
	config.ResetConfig()

	dir := t.TempDir()
	unitsDir = filepath.Join(dir, "units")
	if err := os.MkdirAll(unitsDir, 0755); err != nil {
		t.Fatalf("failed to create units dir: %v", err)
	}
	unitPath := filepath.Join(unitsDir, "beacon.json")
	if err := os.WriteFile(unitPath, []byte(beaconDoc), 0644); err != nil {
		t.Fatalf("failed to write unit file: %v", err)
	}

	flags = []string{
		"--units-dir", unitsDir,
		"--state", filepath.Join(dir, "state.db"),
		"--output", "text",
	}
	return unitsDir, flags
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	config.ResetConfig()
	out, err := execute(t, "version")
	if err != nil {
		t.Errorf("version command error = %v", err)
	}
	if !strings.Contains(out, "structon") {
		t.Errorf("version output should contain 'structon', got: %s", out)
	}
}

func TestVersionFlag(t *testing.T) {
	config.ResetConfig()
	out, err := execute(t, "--version")
	if err != nil {
		t.Errorf("--version error = %v", err)
	}
	if !strings.Contains(out, "Tension-directed execution") {
		t.Errorf("--version output should contain the tagline, got: %s", out)
	}
}

func TestHelpCommand(t *testing.T) {
	config.ResetConfig()
	out, err := execute(t, "--help")
	if err != nil {
		t.Errorf("help command error = %v", err)
	}

	expectedCommands := []string{
		"run", "discover", "list", "show", "trace", "graph", "export",
		"ops", "tension", "query", "watch", "serve", "create", "evolve",
		"doctor", "init",
	}
	for _, expected := range expectedCommands {
		if !strings.Contains(out, expected) {
			t.Errorf("help output should contain '%s', got: %s", expected, out)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	config.ResetConfig()
	_, err := execute(t, "transmogrify")
	if err == nil {
		t.Error("unknown command should return an error")
	}
}

func TestRunCommand(t *testing.T) {
	_, flags := newProject(t)

	out, err := execute(t, append([]string{"run", "beacon"}, flags...)...)
	if err != nil {
		t.Fatalf("run command error = %v\noutput: %s", err, out)
	}
	if !strings.Contains(out, "Running beacon (v1)") {
		t.Errorf("run output should contain the unit header, got: %s", out)
	}
	if !strings.Contains(out, "emit: base-camp") {
		t.Errorf("run output should contain the emitted default, got: %s", out)
	}
	if !strings.Contains(out, "2 completed, 0 failed") {
		t.Errorf("run output should contain the summary, got: %s", out)
	}
}

func TestRunCommandWithSet(t *testing.T) {
	_, flags := newProject(t)

	out, err := execute(t, append([]string{"run", "beacon", "--set", "target=ridge-line"}, flags...)...)
	if err != nil {
		t.Fatalf("run command error = %v\noutput: %s", err, out)
	}
	if !strings.Contains(out, "emit: ridge-line") {
		t.Errorf("run output should contain the overridden value, got: %s", out)
	}
}

func TestRunCommandMissingUnit(t *testing.T) {
	_, flags := newProject(t)

	out, err := execute(t, append([]string{"run", "lighthouse"}, flags...)...)
	if err == nil {
		t.Errorf("run of an unknown unit should fail, got output: %s", out)
	}
}

func TestListCommandAfterDiscover(t *testing.T) {
	_, flags := newProject(t)

	if out, err := execute(t, append([]string{"discover"}, flags...)...); err != nil {
		t.Fatalf("discover command error = %v\noutput: %s", err, out)
	}

	out, err := execute(t, append([]string{"list"}, flags...)...)
	if err != nil {
		t.Fatalf("list command error = %v\noutput: %s", err, out)
	}
	if !strings.Contains(out, "beacon") {
		t.Errorf("list output should contain the synced unit, got: %s", out)
	}
}

func TestGraphCommandShowsLevels(t *testing.T) {
	_, flags := newProject(t)

	if out, err := execute(t, append([]string{"discover"}, flags...)...); err != nil {
		t.Fatalf("discover command error = %v\noutput: %s", err, out)
	}

	out, err := execute(t, append([]string{"graph", "beacon"}, flags...)...)
	if err != nil {
		t.Fatalf("graph command error = %v\noutput: %s", err, out)
	}
	if !strings.Contains(out, "Level 0") {
		t.Errorf("graph output should contain execution levels, got: %s", out)
	}
	if !strings.Contains(out, "read_target") {
		t.Errorf("graph output should contain the node id, got: %s", out)
	}
}

func TestShowCommand(t *testing.T) {
	_, flags := newProject(t)

	if out, err := execute(t, append([]string{"discover"}, flags...)...); err != nil {
		t.Fatalf("discover command error = %v\noutput: %s", err, out)
	}

	out, err := execute(t, append([]string{"show", "beacon"}, flags...)...)
	if err != nil {
		t.Fatalf("show command error = %v\noutput: %s", err, out)
	}
	if !strings.Contains(out, "announce the current target") {
		t.Errorf("show output should contain the intent, got: %s", out)
	}
}

func TestExportCommandRoundTrips(t *testing.T) {
	_, flags := newProject(t)

	if out, err := execute(t, append([]string{"discover"}, flags...)...); err != nil {
		t.Fatalf("discover command error = %v\noutput: %s", err, out)
	}

	out, err := execute(t, append([]string{"export", "beacon"}, flags...)...)
	if err != nil {
		t.Fatalf("export command error = %v\noutput: %s", err, out)
	}
	if !strings.Contains(out, `"identifier": "beacon"`) {
		t.Errorf("export output should contain the unit document, got: %s", out)
	}
}
