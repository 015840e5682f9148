package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadScenarioBuildsSteps(t *testing.T) {
	path := writeScenarioFixture(t, `local s = Scenario.new("steps")
s:script("story.json")
s:step(3)
s:choose(1)
s:expect_background(nil)
s:expect_character("Ava", {expression = "smile"})
s:expect_error("awaiting_choice", "step")
s:run_to_end({route = {1, 0}, max_steps = 50})
return s
`)

	scenario, err := LoadScenarioFromFile(path)
	if err != nil {
		t.Fatalf("load scenario: %v", err)
	}
	if scenario.Name != "steps" || scenario.Dir != filepath.Dir(path) {
		t.Fatalf("scenario = %q in %q", scenario.Name, scenario.Dir)
	}
	kinds := make([]string, len(scenario.Steps))
	for i, step := range scenario.Steps {
		kinds[i] = step.Kind
	}
	want := "script,step,choose,expect_background,expect_character,expect_error,run_to_end"
	if got := strings.Join(kinds, ","); got != want {
		t.Fatalf("kinds = %s, want %s", got, want)
	}

	if scenario.Steps[1].Args["count"] != 3 {
		t.Fatalf("step count = %v", scenario.Steps[1].Args["count"])
	}
	if v, ok := scenario.Steps[3].Args["value"]; !ok || v != nil {
		t.Fatalf("background arg = %v, %v", v, ok)
	}
	if scenario.Steps[4].Args["name"] != "Ava" || scenario.Steps[4].Args["expression"] != "smile" {
		t.Fatalf("character args = %v", scenario.Steps[4].Args)
	}
	if scenario.Steps[5].Args["code"] != "AWAITING_CHOICE" {
		t.Fatalf("error code = %v", scenario.Steps[5].Args["code"])
	}
	route, ok := scenario.Steps[6].Args["route"].([]any)
	if !ok || len(route) != 2 || route[0] != 1 || route[1] != 0 {
		t.Fatalf("route = %#v", scenario.Steps[6].Args["route"])
	}
}

func TestLoadScenarioDefaultsName(t *testing.T) {
	path := writeScenarioFixture(t, `local s = Scenario.new()
s:script_json("{}")
return s
`)
	scenario, err := LoadScenarioFromFile(path)
	if err != nil {
		t.Fatalf("load scenario: %v", err)
	}
	if scenario.Name != "scenario" {
		t.Fatalf("name = %q, want scenario", scenario.Name)
	}
}

func TestLoadScenarioErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "no return", content: `local s = Scenario.new("x")`, want: "must return Scenario"},
		{name: "no steps", content: `return Scenario.new("x")`, want: "has no steps"},
		{name: "no script first", content: "local s = Scenario.new(\"x\")\ns:step()\nreturn s", want: "must start with script"},
		{name: "bad action", content: "local s = Scenario.new(\"x\")\ns:script(\"a.json\")\ns:expect_error(\"X\", \"fly\")\nreturn s", want: "expected step, choose or jump"},
		{name: "bad step count", content: "local s = Scenario.new(\"x\")\ns:script(\"a.json\")\ns:step(0)\nreturn s", want: "step count must be positive"},
		{name: "syntax", content: `local s = `, want: "load lua"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadScenarioFromFile(writeScenarioFixture(t, tc.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error = %q, want %q", err.Error(), tc.want)
			}
		})
	}
}

func writeScenarioFixture(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.lua")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	return path
}
