package influxdb

import (
	"testing"
	"time"

	"github.com/nerrad567/rover-core/internal/infrastructure/config"
)

func TestBatchOptions(t *testing.T) {
	tests := []struct {
		name      string
		batch     int
		flush     int
		wantBatch uint
		wantFlush time.Duration
	}{
		{"configured", 50, 2, 50, 2 * time.Second},
		{"zero uses defaults", 0, 0, defaultBatchSize, defaultFlushInterval},
		{"negative uses defaults", -5, -1, defaultBatchSize, defaultFlushInterval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, flush := batchOptions(config.InfluxDBConfig{BatchSize: tt.batch, FlushInterval: tt.flush})
			if batch != tt.wantBatch || flush != tt.wantFlush {
				t.Errorf("batchOptions() = %d, %v; want %d, %v", batch, flush, tt.wantBatch, tt.wantFlush)
			}
		})
	}
}
