package platform

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	info := Detect()
	assert.Equal(t, runtime.NumCPU(), info.NumCPU)
	assert.Greater(t, info.MaxOpenFiles, 0)
}

func TestWorkerCap(t *testing.T) {
	tests := []struct {
		name     string
		files    int
		expected int
	}{
		{"tiny limit clamps up", 64, 64},
		{"typical 1024", 1024, 256},
		{"exactly at floor", 256, 64},
		{"large limit clamps down", 1 << 20, 512},
		{"unlimited-ish", 1 << 30, 512},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WorkerCap(Info{NumCPU: 8, MaxOpenFiles: tt.files})
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestMaxWorkers(t *testing.T) {
	tests := []struct {
		name     string
		info     Info
		expected int
	}{
		{"four cores", Info{NumCPU: 4, MaxOpenFiles: 1024}, 8},
		{"sixteen cores caps at 32", Info{NumCPU: 16, MaxOpenFiles: 1024}, 32},
		{"single core", Info{NumCPU: 1, MaxOpenFiles: 1024}, 2},
		{"zero cores floors at one", Info{NumCPU: 0, MaxOpenFiles: 1024}, 1},
		{"many cores still 32", Info{NumCPU: 128, MaxOpenFiles: 1 << 20}, 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MaxWorkers(tt.info))
		})
	}
}

func TestMaxWorkersNeverExceedsCap(t *testing.T) {
	for cpus := 0; cpus <= 64; cpus++ {
		info := Info{NumCPU: cpus, MaxOpenFiles: 300}
		require.LessOrEqual(t, MaxWorkers(info), WorkerCap(info))
	}
}
