package scenario

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/Shopify/go-lua"
)

const scenarioTypeName = "scenario"

// Scenario is an ordered list of steps loaded from a Lua file.
type Scenario struct {
	Name string
	// Dir is the directory script paths resolve against.
	Dir   string
	Steps []Step
}

// Step is one scenario action with its Lua arguments.
type Step struct {
	Kind string
	Args map[string]any
}

// LoadScenarioFromFile runs a Lua scenario file and returns the Scenario it
// builds.
func LoadScenarioFromFile(path string) (*Scenario, error) {
	state := lua.NewState()
	lua.OpenLibraries(state)
	registerLuaTypes(state)

	if err := lua.LoadFile(state, path, ""); err != nil {
		return nil, fmt.Errorf("load lua: %w", err)
	}
	if err := state.ProtectedCall(0, 1, 0); err != nil {
		return nil, fmt.Errorf("run lua: %w", err)
	}

	if state.TypeOf(-1) != lua.TypeUserData {
		state.Pop(1)
		return nil, fmt.Errorf("scenario script must return Scenario")
	}
	ud := state.ToUserData(-1)
	state.Pop(1)
	scenario, ok := ud.(*Scenario)
	if !ok || scenario == nil {
		return nil, fmt.Errorf("scenario script returned invalid Scenario")
	}
	if strings.TrimSpace(scenario.Name) == "" {
		scenario.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	scenario.Dir = filepath.Dir(path)
	if err := validateScenario(scenario); err != nil {
		return nil, err
	}
	return scenario, nil
}

func validateScenario(scenario *Scenario) error {
	if len(scenario.Steps) == 0 {
		return fmt.Errorf("scenario %s has no steps", scenario.Name)
	}
	first := scenario.Steps[0].Kind
	if first != "script" && first != "script_json" {
		return fmt.Errorf("scenario %s must start with script or script_json", scenario.Name)
	}
	return nil
}

func registerLuaTypes(state *lua.State) {
	lua.NewMetaTable(state, scenarioTypeName)
	state.NewTable()
	lua.SetFunctions(state, scenarioMethods, 0)
	state.SetField(-2, "__index")
	state.Pop(1)

	state.NewTable()
	lua.SetFunctions(state, []lua.RegistryFunction{{Name: "new", Function: scenarioNew}}, 0)
	state.SetGlobal("Scenario")
}

var scenarioMethods = []lua.RegistryFunction{
	{Name: "script", Function: scenarioScript},
	{Name: "script_json", Function: scenarioScriptJSON},
	{Name: "step", Function: scenarioStep},
	{Name: "choose", Function: scenarioChoose},
	{Name: "jump", Function: scenarioJump},
	{Name: "save", Function: scenarioSave},
	{Name: "load", Function: scenarioLoad},
	{Name: "run_to_end", Function: scenarioRunToEnd},
	{Name: "expect_position", Function: scenarioExpectPosition},
	{Name: "expect_kind", Function: scenarioExpectKind},
	{Name: "expect_text", Function: scenarioExpectText},
	{Name: "expect_speaker", Function: scenarioExpectSpeaker},
	{Name: "expect_var", Function: scenarioExpectVar},
	{Name: "expect_flag", Function: scenarioExpectFlag},
	{Name: "expect_background", Function: scenarioExpectBackground},
	{Name: "expect_music", Function: scenarioExpectMusic},
	{Name: "expect_character", Function: scenarioExpectCharacter},
	{Name: "expect_no_character", Function: scenarioExpectNoCharacter},
	{Name: "expect_history", Function: scenarioExpectHistory},
	{Name: "expect_finished", Function: scenarioExpectFinished},
	{Name: "expect_error", Function: scenarioExpectError},
}

func scenarioNew(state *lua.State) int {
	name := lua.OptString(state, 1, "")
	state.PushUserData(&Scenario{Name: name})
	lua.SetMetaTableNamed(state, scenarioTypeName)
	return 1
}

func scenarioScript(state *lua.State) int {
	scenario := checkScenario(state)
	path := lua.CheckString(state, 2)
	if strings.TrimSpace(path) == "" {
		lua.Errorf(state, "script path is required")
	}
	appendStep(scenario, "script", map[string]any{"path": path})
	return 0
}

func scenarioScriptJSON(state *lua.State) int {
	scenario := checkScenario(state)
	source := lua.CheckString(state, 2)
	appendStep(scenario, "script_json", map[string]any{"source": source})
	return 0
}

func scenarioStep(state *lua.State) int {
	scenario := checkScenario(state)
	count := lua.OptInteger(state, 2, 1)
	if count < 1 {
		lua.Errorf(state, "step count must be positive")
	}
	appendStep(scenario, "step", map[string]any{"count": count})
	return 0
}

func scenarioChoose(state *lua.State) int {
	scenario := checkScenario(state)
	appendStep(scenario, "choose", map[string]any{"index": lua.CheckInteger(state, 2)})
	return 0
}

func scenarioJump(state *lua.State) int {
	scenario := checkScenario(state)
	appendStep(scenario, "jump", map[string]any{"label": lua.CheckString(state, 2)})
	return 0
}

func scenarioSave(state *lua.State) int {
	scenario := checkScenario(state)
	appendStep(scenario, "save", map[string]any{"name": lua.OptString(state, 2, "default")})
	return 0
}

func scenarioLoad(state *lua.State) int {
	scenario := checkScenario(state)
	appendStep(scenario, "load", map[string]any{"name": lua.OptString(state, 2, "default")})
	return 0
}

func scenarioRunToEnd(state *lua.State) int {
	scenario := checkScenario(state)
	appendStep(scenario, "run_to_end", optionalTable(state, 2))
	return 0
}

func scenarioExpectPosition(state *lua.State) int {
	scenario := checkScenario(state)
	appendStep(scenario, "expect_position", map[string]any{"position": lua.CheckInteger(state, 2)})
	return 0
}

func scenarioExpectKind(state *lua.State) int {
	scenario := checkScenario(state)
	appendStep(scenario, "expect_kind", map[string]any{"kind": lua.CheckString(state, 2)})
	return 0
}

func scenarioExpectText(state *lua.State) int {
	scenario := checkScenario(state)
	appendStep(scenario, "expect_text", map[string]any{"text": lua.CheckString(state, 2)})
	return 0
}

func scenarioExpectSpeaker(state *lua.State) int {
	scenario := checkScenario(state)
	appendStep(scenario, "expect_speaker", map[string]any{"speaker": lua.CheckString(state, 2)})
	return 0
}

func scenarioExpectVar(state *lua.State) int {
	scenario := checkScenario(state)
	key := lua.CheckString(state, 2)
	appendStep(scenario, "expect_var", map[string]any{"key": key, "value": lua.CheckInteger(state, 3)})
	return 0
}

func scenarioExpectFlag(state *lua.State) int {
	scenario := checkScenario(state)
	key := lua.CheckString(state, 2)
	lua.CheckType(state, 3, lua.TypeBoolean)
	appendStep(scenario, "expect_flag", map[string]any{"key": key, "value": state.ToBoolean(3)})
	return 0
}

func scenarioExpectBackground(state *lua.State) int {
	scenario := checkScenario(state)
	appendStep(scenario, "expect_background", optionalStringArg(state, 2))
	return 0
}

func scenarioExpectMusic(state *lua.State) int {
	scenario := checkScenario(state)
	appendStep(scenario, "expect_music", optionalStringArg(state, 2))
	return 0
}

func scenarioExpectCharacter(state *lua.State) int {
	scenario := checkScenario(state)
	name := lua.CheckString(state, 2)
	data := optionalTable(state, 3)
	data["name"] = name
	appendStep(scenario, "expect_character", data)
	return 0
}

func scenarioExpectNoCharacter(state *lua.State) int {
	scenario := checkScenario(state)
	appendStep(scenario, "expect_no_character", map[string]any{"name": lua.CheckString(state, 2)})
	return 0
}

func scenarioExpectHistory(state *lua.State) int {
	scenario := checkScenario(state)
	data := map[string]any{"count": lua.CheckInteger(state, 2)}
	if !state.IsNoneOrNil(3) {
		data["last"] = lua.CheckString(state, 3)
	}
	appendStep(scenario, "expect_history", data)
	return 0
}

func scenarioExpectFinished(state *lua.State) int {
	scenario := checkScenario(state)
	finished := true
	if !state.IsNoneOrNil(2) {
		lua.CheckType(state, 2, lua.TypeBoolean)
		finished = state.ToBoolean(2)
	}
	appendStep(scenario, "expect_finished", map[string]any{"finished": finished})
	return 0
}

// scenarioExpectError records expect_error(code, action[, arg]). action is
// "step", "choose" or "jump"; arg is the choice index or label.
func scenarioExpectError(state *lua.State) int {
	scenario := checkScenario(state)
	code := lua.CheckString(state, 2)
	action := lua.CheckString(state, 3)
	data := map[string]any{"code": strings.ToUpper(code), "action": action}
	switch action {
	case "step":
	case "choose":
		data["arg"] = lua.CheckInteger(state, 4)
	case "jump":
		data["arg"] = lua.CheckString(state, 4)
	default:
		lua.ArgumentError(state, 3, "expected step, choose or jump")
	}
	appendStep(scenario, "expect_error", data)
	return 0
}

func optionalStringArg(state *lua.State, index int) map[string]any {
	if state.IsNoneOrNil(index) {
		return map[string]any{"value": nil}
	}
	return map[string]any{"value": lua.CheckString(state, index)}
}

func checkScenario(state *lua.State) *Scenario {
	ud := lua.CheckUserData(state, 1, scenarioTypeName)
	if scenario, ok := ud.(*Scenario); ok && scenario != nil {
		return scenario
	}
	lua.ArgumentError(state, 1, "scenario expected")
	return nil
}

func appendStep(scenario *Scenario, kind string, data map[string]any) int {
	if scenario == nil {
		return -1
	}
	if data == nil {
		data = map[string]any{}
	}
	scenario.Steps = append(scenario.Steps, Step{Kind: kind, Args: data})
	return len(scenario.Steps) - 1
}

func optionalTable(state *lua.State, index int) map[string]any {
	if state.IsNoneOrNil(index) || state.TypeOf(index) != lua.TypeTable {
		return map[string]any{}
	}
	return tableToMap(state, index)
}

func tableToMap(state *lua.State, index int) map[string]any {
	output := map[string]any{}
	if state.TypeOf(index) != lua.TypeTable {
		return output
	}

	index = state.AbsIndex(index)
	state.PushNil()
	for state.Next(index) {
		if state.TypeOf(-2) == lua.TypeString {
			key, _ := state.ToString(-2)
			output[key] = luaToGo(state, -1)
		}
		state.Pop(1)
	}
	return output
}

func luaToGo(state *lua.State, index int) any {
	switch state.TypeOf(index) {
	case lua.TypeString:
		value, _ := state.ToString(index)
		return value
	case lua.TypeNumber:
		value, _ := state.ToNumber(index)
		return normalizeNumber(value)
	case lua.TypeBoolean:
		return state.ToBoolean(index)
	case lua.TypeTable:
		return tableToGo(state, index)
	default:
		return nil
	}
}

func tableToGo(state *lua.State, index int) any {
	index = state.AbsIndex(index)
	isArray := true
	maxIndex := 0
	count := 0
	state.PushNil()
	for state.Next(index) {
		if isArray {
			if state.TypeOf(-2) != lua.TypeNumber {
				isArray = false
			} else if idx, ok := state.ToInteger(-2); ok && idx > 0 {
				count++
				maxIndex = max(maxIndex, idx)
			} else {
				isArray = false
			}
		}
		state.Pop(1)
	}

	if isArray && count > 0 && maxIndex == count {
		result := make([]any, 0, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			state.RawGetInt(index, i)
			result = append(result, luaToGo(state, -1))
			state.Pop(1)
		}
		return result
	}
	return tableToMap(state, index)
}

func normalizeNumber(value float64) any {
	if math.Mod(value, 1) == 0 {
		return int(value)
	}
	return value
}
