package robot

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/nerrad567/rover-core/internal/scripting"
)

// LuaValue returns the "robot" table of a Lua script. Failing calls
// raise a Lua error.
func (ri *RobotInterface) LuaValue(L *lua.LState, ctl *scripting.Control) lua.LValue {
	t := L.NewTable()

	motors := L.NewTable()
	for _, m := range ri.motors {
		motors.Append(motorTable(L, ctl, m))
	}
	sensors := L.NewTable()
	for _, s := range ri.sensors {
		sensors.Append(sensorTable(L, ctl, s))
	}
	L.SetField(t, "motors", motors)
	L.SetField(t, "sensors", sensors)

	L.SetField(t, "motor", L.NewFunction(func(L *lua.LState) int {
		var m *MotorWrapper
		var err error
		if name, ok := L.Get(1).(lua.LString); ok {
			m, err = ri.MotorByName(string(name))
		} else {
			m, err = ri.Motor(L.CheckInt(1))
		}
		raise(L, err)
		L.Push(motors.RawGetInt(m.ID()))
		return 1
	}))
	L.SetField(t, "sensor", L.NewFunction(func(L *lua.LState) int {
		var s *SensorWrapper
		var err error
		if name, ok := L.Get(1).(lua.LString); ok {
			s, err = ri.SensorByName(string(name))
		} else {
			s, err = ri.Sensor(L.CheckInt(1))
		}
		raise(L, err)
		L.Push(sensors.RawGetInt(s.ID()))
		return 1
	}))

	dt := drivetrainTable(L, ctl, ri.drivetrain)
	L.SetField(t, "drivetrain", dt)
	L.SetField(t, "drive", L.GetField(dt, "drive"))
	L.SetField(t, "turn", L.GetField(dt, "turn"))

	led := ringLedTable(L, ctl, ri.led)
	L.SetField(t, "led", led)
	L.SetField(t, "led_ring", led)

	L.SetField(t, "play_tune", L.NewFunction(func(L *lua.LState) int {
		raise(L, ri.PlayTune(ctl, L.CheckString(1)))
		return 0
	}))
	L.SetField(t, "set_volume", L.NewFunction(func(L *lua.LState) int {
		raise(L, ri.SetVolume(ctl, L.CheckInt(1)))
		return 0
	}))
	L.SetField(t, "stop_all_motors", L.NewFunction(func(L *lua.LState) int {
		raise(L, ri.StopAllMotors(ctl, L.OptInt(1, ActionRelease)))
		return 0
	}))
	L.SetField(t, "time", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(ri.Time().Seconds()))
		return 1
	}))

	return t
}

func raise(L *lua.LState, err error) {
	if err != nil {
		L.RaiseError("%s", err)
	}
}

func motorTable(L *lua.LState, ctl *scripting.Control, m *MotorWrapper) *lua.LTable {
	t := L.NewTable()
	L.SetField(t, "id", lua.LNumber(m.ID()))
	L.SetField(t, "move", L.NewFunction(func(L *lua.LState) int {
		raise(L, m.Move(ctl,
			L.CheckInt(1), float64(L.CheckNumber(2)), L.CheckInt(3),
			float64(L.CheckNumber(4)), L.CheckInt(5)))
		return 0
	}))
	L.SetField(t, "spin", L.NewFunction(func(L *lua.LState) int {
		raise(L, m.Spin(ctl, L.CheckInt(1), float64(L.CheckNumber(2)), L.CheckInt(3)))
		return 0
	}))
	L.SetField(t, "stop", L.NewFunction(func(L *lua.LState) int {
		raise(L, m.Stop(ctl, L.OptInt(1, ActionRelease)))
		return 0
	}))
	L.SetField(t, "configure", L.NewFunction(func(L *lua.LState) int {
		raise(L, m.Configure(ctl, L.CheckString(1)))
		return 0
	}))
	L.SetField(t, "status", L.NewFunction(func(L *lua.LState) int {
		st := m.Status()
		L.Push(lua.LNumber(st.Position))
		L.Push(lua.LNumber(st.Speed))
		L.Push(lua.LNumber(st.Power))
		return 3
	}))
	return t
}

func sensorTable(L *lua.LState, ctl *scripting.Control, s *SensorWrapper) *lua.LTable {
	t := L.NewTable()
	L.SetField(t, "id", lua.LNumber(s.ID()))
	L.SetField(t, "read", L.NewFunction(func(L *lua.LState) int {
		v, err := s.Read(ctl)
		raise(L, err)
		L.Push(scripting.ToLua(L, ctl, v))
		return 1
	}))
	L.SetField(t, "configure", L.NewFunction(func(L *lua.LState) int {
		raise(L, s.Configure(ctl, L.CheckString(1)))
		return 0
	}))
	return t
}

func drivetrainTable(L *lua.LState, ctl *scripting.Control, d *DrivetrainWrapper) *lua.LTable {
	t := L.NewTable()
	L.SetField(t, "drive", L.NewFunction(func(L *lua.LState) int {
		raise(L, d.Drive(ctl,
			L.CheckInt(1), float64(L.CheckNumber(2)), L.CheckInt(3),
			float64(L.CheckNumber(4)), L.CheckInt(5)))
		return 0
	}))
	L.SetField(t, "turn", L.NewFunction(func(L *lua.LState) int {
		raise(L, d.Turn(ctl,
			L.CheckInt(1), float64(L.CheckNumber(2)), L.CheckInt(3),
			float64(L.CheckNumber(4)), L.CheckInt(5)))
		return 0
	}))
	L.SetField(t, "set_speeds", L.NewFunction(func(L *lua.LState) int {
		raise(L, d.SetSpeeds(float64(L.CheckNumber(1)), float64(L.CheckNumber(2))))
		return 0
	}))
	return t
}

func ringLedTable(L *lua.LState, ctl *scripting.Control, r *RingLedWrapper) *lua.LTable {
	t := L.NewTable()
	L.SetField(t, "count", lua.LNumber(r.Count()))
	L.SetField(t, "set", L.NewFunction(func(L *lua.LState) int {
		var indices []int
		switch v := L.Get(1).(type) {
		case lua.LNumber:
			indices = []int{int(v)}
		case *lua.LTable:
			v.ForEach(func(_, e lua.LValue) {
				if n, ok := e.(lua.LNumber); ok {
					indices = append(indices, int(n))
				}
			})
		default:
			L.ArgError(1, "led index or list of indices expected")
		}
		raise(L, r.Set(ctl, indices, L.CheckString(2)))
		return 0
	}))
	L.SetField(t, "set_scenario", L.NewFunction(func(L *lua.LState) int {
		raise(L, r.SetScenario(ctl, RingLedScenario(L.CheckInt(1))))
		return 0
	}))
	L.SetField(t, "scenario", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(r.Scenario()))
		return 1
	}))
	return t
}
