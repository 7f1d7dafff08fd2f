package influxdb_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/rover-core/internal/infrastructure/config"
	"github.com/nerrad567/rover-core/internal/infrastructure/influxdb"
)

// testConfig returns a configuration for a local InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "rover-dev-token",
		Org:           "rover",
		Bucket:        "telemetry",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// skipIfNoInfluxDB skips the test if InfluxDB is not running.
func skipIfNoInfluxDB(t *testing.T) {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") == "" {
		client, err := influxdb.Connect(testConfig(), "probe")
		if err != nil {
			t.Skip("InfluxDB not available, skipping integration test")
		}
		client.Close()
	}
}

func lineOf(p *write.Point) string {
	return write.PointToLineProtocol(p, time.Nanosecond)
}

// =============================================================================
// Point Tests
// =============================================================================

func TestBatteryPoint(t *testing.T) {
	line := lineOf(influxdb.BatteryPoint("r1", 80, 65, 1, time.Unix(0, 42)))

	for _, want := range []string{"battery,robot=r1 ", "charger=1i", "main=80i", "motor=65i", " 42"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestMotorPoint(t *testing.T) {
	line := lineOf(influxdb.MotorPoint("r1", 2, -5, 90, -30, time.Unix(0, 1)))

	for _, want := range []string{"motor,port=2,robot=r1 ", "position=-5i", "power=-30i", "speed=90"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestSensorPoint(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"int", 33, "value=33"},
		{"float", 1.5, "value=1.5"},
		{"bool true", true, "value=1"},
		{"bool false", false, "value=0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := influxdb.SensorPoint("r1", 1, tt.value, time.Unix(0, 1))
			if p == nil {
				t.Fatal("SensorPoint() = nil")
			}
			line := lineOf(p)
			if !strings.HasPrefix(line, "sensor,port=1,robot=r1 ") || !strings.Contains(line, tt.want) {
				t.Errorf("line = %q, want %q", line, tt.want)
			}
		})
	}

	if p := influxdb.SensorPoint("r1", 1, "far", time.Now()); p != nil {
		t.Error("SensorPoint(string) should be nil")
	}
}

func TestScriptRunPoint(t *testing.T) {
	line := lineOf(influxdb.ScriptRunPoint("r1", "user_script_0", 3, true, time.Unix(0, 1)))

	for _, want := range []string{"script_run,robot=r1,script=user_script_0 ", "failed=true", "runs=3i"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestWrite_DisconnectedClientDropsPoints(t *testing.T) {
	c := &influxdb.Client{}
	c.WriteBattery(1, 2, 3)
	c.WriteMotorStatus(1, 0, 0, 0)
	c.WriteSensorValue(1, 5)
	c.WriteScriptRun("s", 1, false)
	c.WritePoint("custom", nil, map[string]interface{}{"v": 1})
	c.Flush()

	if err := c.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg, "r1")
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_InvalidURL(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	_, err := influxdb.Connect(cfg, "r1")
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect(t *testing.T) {
	skipIfNoInfluxDB(t)

	client, err := influxdb.Connect(testConfig(), "r1")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	skipIfNoInfluxDB(t)
	cfg := testConfig()
	cfg.BatchSize = -5
	cfg.FlushInterval = 0

	client, err := influxdb.Connect(cfg, "r1")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false with default batch settings")
	}
}

func TestWriteTelemetry(t *testing.T) {
	skipIfNoInfluxDB(t)

	client, err := influxdb.Connect(testConfig(), "r1")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	var writeErr error
	client.SetOnError(func(err error) { writeErr = err })

	client.WriteBattery(80, 60, 0)
	client.WriteMotorStatus(1, 360, 90, 40)
	client.WriteSensorValue(2, 25)
	client.WriteScriptRun("user_script_0", 1, false)
	client.Flush()
	time.Sleep(100 * time.Millisecond)

	if writeErr != nil {
		t.Errorf("write error = %v", writeErr)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}
