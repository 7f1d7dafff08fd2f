package robot

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/nerrad567/rover-core/internal/remote"
	"github.com/nerrad567/rover-core/internal/scripting"
)

// ErrInvalidConfig is returned when a configuration document cannot be used.
var ErrInvalidConfig = errors.New("robot: invalid configuration")

// drivetrainMotorTypes[side][reversed] is the configuration of a drivetrain motor.
var drivetrainMotorTypes = [2][2]string{
	{"RevvyMotor_CCW", "RevvyMotor"}, // left
	{"RevvyMotor", "RevvyMotor_CCW"}, // right
}

var sensorTypes = []string{NotConfigured, "HC_SR04", "BumperSwitch"}

// PortConfig maps 1-based port ids to configuration names.
type PortConfig struct {
	ports map[int]string

	// Names maps user-given port names to port ids.
	Names map[string]int
}

func newPortConfig() PortConfig {
	return PortConfig{ports: make(map[int]string), Names: make(map[string]int)}
}

// Get returns the configuration of port id, NotConfigured if unset.
func (p PortConfig) Get(id int) string {
	if name, ok := p.ports[id]; ok {
		return name
	}
	return NotConfigured
}

// Set assigns a configuration to port id.
func (p PortConfig) Set(id int, name string) {
	p.ports[id] = name
}

// ScriptSpec is a script to register on configuration.
type ScriptSpec struct {
	Body     scripting.Body
	Priority int
}

// AnalogBinding starts Script with the values of Channels.
type AnalogBinding struct {
	Channels []int
	Script   string
}

// Config is a decoded robot configuration.
type Config struct {
	Motors  PortConfig
	Sensors PortConfig

	DrivetrainLeft  []int
	DrivetrainRight []int

	Scripts map[string]ScriptSpec
	Analog  []AnalogBinding

	// Buttons holds the script started by each button, "" for none.
	Buttons [remote.ButtonCount]string

	Background []string
}

// NewConfig returns an empty configuration: every port unconfigured and
// no scripts.
func NewConfig() *Config {
	return &Config{
		Motors:  newPortConfig(),
		Sensors: newPortConfig(),
		Scripts: make(map[string]ScriptSpec),
	}
}

// Document layout. encoding/json matches keys case-insensitively, which
// covers both the camelCase and the lowercase spellings in use.
type configDocument struct {
	RobotConfig json.RawMessage `json:"robotConfig"`
	BlocklyList json.RawMessage `json:"blocklyList"`
}

type scriptDocument struct {
	BuiltinScriptName *string              `json:"builtinScriptName"`
	LuaCode           *string              `json:"luaCode"`
	PythonCode        *string              `json:"pythonCode"`
	Assignments       *assignmentsDocument `json:"assignments"`
}

type assignmentsDocument struct {
	Analog []struct {
		Channels []int `json:"channels"`
		Priority *int  `json:"priority"`
	} `json:"analog"`
	Buttons []struct {
		ID       *int `json:"id"`
		Priority *int `json:"priority"`
	} `json:"buttons"`
	Background *int `json:"background"`
}

type portsDocument struct {
	Motors  []json.RawMessage `json:"motors"`
	Sensors []json.RawMessage `json:"sensors"`
}

type motorDocument struct {
	Type     *int       `json:"type"`
	Name     *string    `json:"name"`
	Side     *flexIndex `json:"side"`
	Reversed *flexIndex `json:"reversed"`
}

type sensorDocument struct {
	Type *int    `json:"type"`
	Name *string `json:"name"`
}

// flexIndex accepts a JSON number or boolean.
type flexIndex int

func (f *flexIndex) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "true":
		*f = 1
		return nil
	case "false":
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("expected index, got %s", data)
	}
	*f = flexIndex(n)
	return nil
}

// ParseConfig decodes a configuration document.
//
// The document has a "robotConfig" object with "motors" and "sensors"
// lists, and a "blocklyList" of scripts. Every script is either a builtin
// ("builtinScriptName") or base64 encoded Lua ("luaCode", or "pythonCode"
// for older clients), and produces one user_script_N per assignment.
//
// Returns:
//   - *Config: The decoded configuration
//   - error: Wraps ErrInvalidConfig
func ParseConfig(data []byte) (*Config, error) {
	var doc configDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: not valid json: %v", ErrInvalidConfig, err)
	}
	if doc.RobotConfig == nil || doc.BlocklyList == nil {
		return nil, fmt.Errorf("%w: missing robotConfig or blocklyList", ErrInvalidConfig)
	}

	cfg := NewConfig()
	if err := cfg.decodeScripts(doc.BlocklyList); err != nil {
		return nil, fmt.Errorf("%w: scripts: %v", ErrInvalidConfig, err)
	}

	var ports portsDocument
	if isObject(doc.RobotConfig) {
		if err := json.Unmarshal(doc.RobotConfig, &ports); err != nil {
			return nil, fmt.Errorf("%w: robotConfig: %v", ErrInvalidConfig, err)
		}
	}
	if err := cfg.decodeMotors(ports.Motors); err != nil {
		return nil, fmt.Errorf("%w: motors: %v", ErrInvalidConfig, err)
	}
	if err := cfg.decodeSensors(ports.Sensors); err != nil {
		return nil, fmt.Errorf("%w: sensors: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

func (c *Config) decodeScripts(raw json.RawMessage) error {
	var scripts []scriptDocument
	if err := json.Unmarshal(raw, &scripts); err != nil {
		return err
	}
	if scripts == nil {
		return errors.New("blocklyList is not a list")
	}

	i := 0
	next := func(body scripting.Body, priority int) string {
		name := fmt.Sprintf("user_script_%d", i)
		c.Scripts[name] = ScriptSpec{Body: body, Priority: priority}
		i++
		return name
	}

	for idx, script := range scripts {
		body, err := script.body()
		if err != nil {
			return fmt.Errorf("script %d: %w", idx, err)
		}
		a := script.Assignments
		if a == nil {
			return fmt.Errorf("script %d: missing assignments", idx)
		}

		for _, analog := range a.Analog {
			if analog.Priority == nil || analog.Channels == nil {
				return fmt.Errorf("script %d: incomplete analog assignment", idx)
			}
			name := next(body, *analog.Priority)
			c.Analog = append(c.Analog, AnalogBinding{Channels: analog.Channels, Script: name})
		}

		for _, button := range a.Buttons {
			if button.ID == nil || button.Priority == nil {
				return fmt.Errorf("script %d: incomplete button assignment", idx)
			}
			if *button.ID < 0 || *button.ID >= remote.ButtonCount {
				return fmt.Errorf("script %d: button %d out of range", idx, *button.ID)
			}
			c.Buttons[*button.ID] = next(body, *button.Priority)
		}

		if a.Background != nil {
			c.Background = append(c.Background, next(body, *a.Background))
		}
	}
	return nil
}

func (s scriptDocument) body() (scripting.Body, error) {
	if s.BuiltinScriptName != nil {
		if b, ok := scripting.Builtin(*s.BuiltinScriptName); ok {
			return b, nil
		}
	}

	encoded := s.LuaCode
	if encoded == nil {
		encoded = s.PythonCode
	}
	if encoded == nil {
		return nil, errors.New("neither builtinScriptName nor luaCode present")
	}
	source, err := base64.StdEncoding.DecodeString(*encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding source: %w", err)
	}
	return scripting.LuaBody{Source: string(source)}, nil
}

func (c *Config) decodeMotors(motors []json.RawMessage) error {
	for i, raw := range motors {
		id := i + 1
		var m motorDocument
		if !isEmpty(raw) {
			if err := json.Unmarshal(raw, &m); err != nil {
				return fmt.Errorf("motor %d: %w", id, err)
			}
		} else {
			zero := 0
			m.Type = &zero
		}
		if m.Type == nil {
			return fmt.Errorf("motor %d: missing type", id)
		}

		var name string
		switch *m.Type {
		case 0:
			name = NotConfigured
		case 1:
			if m.Name == nil {
				return fmt.Errorf("motor %d: missing name", id)
			}
			name = "RevvyMotor"
			c.Motors.Names[*m.Name] = id
		case 2:
			if m.Name == nil || m.Side == nil || m.Reversed == nil {
				return fmt.Errorf("motor %d: incomplete drivetrain motor", id)
			}
			side, reversed := int(*m.Side), int(*m.Reversed)
			if side < 0 || side > 1 || reversed < 0 || reversed > 1 {
				return fmt.Errorf("motor %d: invalid side or direction", id)
			}
			name = drivetrainMotorTypes[side][reversed]
			c.Motors.Names[*m.Name] = id
			if side == 0 {
				c.DrivetrainLeft = append(c.DrivetrainLeft, id)
			} else {
				c.DrivetrainRight = append(c.DrivetrainRight, id)
			}
		default:
			return fmt.Errorf("motor %d: unknown motor type %d", id, *m.Type)
		}
		c.Motors.Set(id, name)
	}
	return nil
}

func (c *Config) decodeSensors(sensors []json.RawMessage) error {
	for i, raw := range sensors {
		id := i + 1
		var s sensorDocument
		if !isEmpty(raw) {
			if err := json.Unmarshal(raw, &s); err != nil {
				return fmt.Errorf("sensor %d: %w", id, err)
			}
		}
		if s.Type == nil && !isEmpty(raw) {
			return fmt.Errorf("sensor %d: missing type", id)
		}

		if s.Type == nil || *s.Type == 0 {
			c.Sensors.Set(id, NotConfigured)
			continue
		}
		if *s.Type < 0 || *s.Type >= len(sensorTypes) {
			return fmt.Errorf("sensor %d: unknown sensor type %d", id, *s.Type)
		}
		if s.Name == nil {
			return fmt.Errorf("sensor %d: missing name", id)
		}
		c.Sensors.Names[*s.Name] = id
		c.Sensors.Set(id, sensorTypes[*s.Type])
	}
	return nil
}

// isEmpty reports whether raw is null, {} or [] (falsy in the documents).
func isEmpty(raw json.RawMessage) bool {
	switch string(bytes.Join(bytes.Fields(raw), nil)) {
	case "null", "{}", "[]", "", "0", "false", `""`:
		return true
	}
	return false
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
