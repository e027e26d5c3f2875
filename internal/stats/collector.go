package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ringSize bounds the throughput history to one minute of samples.
const ringSize = 60

// sample holds one second's worth of progress deltas.
type sample struct {
	bytes int64
	files int64
}

// Collector accumulates transfer counters. Workers increment the atomics
// from many goroutines; the presenter reads snapshots and owns the
// throughput ring via Tick.
type Collector struct {
	filesScanned    atomic.Int64
	filesCopied     atomic.Int64
	filesFailed     atomic.Int64
	filesSkipped    atomic.Int64
	filesDeleted    atomic.Int64
	filesMoved      atomic.Int64
	bytesCopied     atomic.Int64
	dirsCreated     atomic.Int64
	symlinksCreated atomic.Int64
	retries         atomic.Int64

	filesDelta        atomic.Int64
	deltaLiteralBytes atomic.Int64
	deltaMatchedBytes atomic.Int64

	bytesTotal        atomic.Int64
	filesTotal        atomic.Int64
	filesVerified     atomic.Int64
	filesVerifyFailed atomic.Int64
	startTime         time.Time

	// Throughput ring. Only the presenter's Tick writes here.
	mu        sync.Mutex
	ring      [ringSize]sample
	ringIdx   int
	ringCount int // samples written so far, capped at ringSize
	lastBytes int64
	lastFiles int64
}

// ReadTicker is the collector surface presenters need: reading counters
// and advancing the throughput ring. Workers keep the full *Collector.
type ReadTicker interface {
	Snapshot() Snapshot
	Tick()
	RollingSpeed(seconds int) float64
	RollingFilesPerSec(seconds int) float64
	SparklineData(n int) []float64
	ETA() time.Duration
	Elapsed() time.Duration
}

// NewCollector starts the elapsed clock at now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// SetTotals records the scan result in one shot.
func (c *Collector) SetTotals(files, bytes int64) {
	c.filesTotal.Store(files)
	c.bytesTotal.Store(bytes)
}

// AddFilesTotal grows the expected file count while scanning is still running.
func (c *Collector) AddFilesTotal(n int64) { c.filesTotal.Add(n) }

// AddBytesTotal grows the expected byte count while scanning is still running.
func (c *Collector) AddBytesTotal(n int64) { c.bytesTotal.Add(n) }

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	FilesScanned    int64
	FilesCopied     int64
	FilesFailed     int64
	FilesSkipped    int64
	FilesDeleted    int64
	FilesMoved      int64
	BytesCopied     int64
	DirsCreated     int64
	SymlinksCreated int64
	Retries         int64

	FilesDelta        int64
	DeltaLiteralBytes int64
	DeltaMatchedBytes int64

	BytesTotal        int64
	FilesTotal        int64
	FilesVerified     int64
	FilesVerifyFailed int64
	Elapsed           time.Duration
}

func (c *Collector) AddFilesScanned(n int64)      { c.filesScanned.Add(n) }
func (c *Collector) AddFilesCopied(n int64)       { c.filesCopied.Add(n) }
func (c *Collector) AddFilesFailed(n int64)       { c.filesFailed.Add(n) }
func (c *Collector) AddFilesSkipped(n int64)      { c.filesSkipped.Add(n) }
func (c *Collector) AddFilesDeleted(n int64)      { c.filesDeleted.Add(n) }
func (c *Collector) AddFilesMoved(n int64)        { c.filesMoved.Add(n) }
func (c *Collector) AddBytesCopied(n int64)       { c.bytesCopied.Add(n) }
func (c *Collector) AddDirsCreated(n int64)       { c.dirsCreated.Add(n) }
func (c *Collector) AddSymlinksCreated(n int64)   { c.symlinksCreated.Add(n) }
func (c *Collector) AddRetries(n int64)           { c.retries.Add(n) }
func (c *Collector) AddFilesDelta(n int64)        { c.filesDelta.Add(n) }
func (c *Collector) AddDeltaLiteralBytes(n int64) { c.deltaLiteralBytes.Add(n) }
func (c *Collector) AddDeltaMatchedBytes(n int64) { c.deltaMatchedBytes.Add(n) }
func (c *Collector) AddFilesVerified(n int64)     { c.filesVerified.Add(n) }
func (c *Collector) AddFilesVerifyFailed(n int64) { c.filesVerifyFailed.Add(n) }

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		FilesScanned:    c.filesScanned.Load(),
		FilesCopied:     c.filesCopied.Load(),
		FilesFailed:     c.filesFailed.Load(),
		FilesSkipped:    c.filesSkipped.Load(),
		FilesDeleted:    c.filesDeleted.Load(),
		FilesMoved:      c.filesMoved.Load(),
		BytesCopied:     c.bytesCopied.Load(),
		DirsCreated:     c.dirsCreated.Load(),
		SymlinksCreated: c.symlinksCreated.Load(),
		Retries:         c.retries.Load(),

		FilesDelta:        c.filesDelta.Load(),
		DeltaLiteralBytes: c.deltaLiteralBytes.Load(),
		DeltaMatchedBytes: c.deltaMatchedBytes.Load(),

		BytesTotal:        c.bytesTotal.Load(),
		FilesTotal:        c.filesTotal.Load(),
		FilesVerified:     c.filesVerified.Load(),
		FilesVerifyFailed: c.filesVerifyFailed.Load(),
		Elapsed:           c.Elapsed(),
	}
}

// Tick records the byte and file deltas since the previous call. The
// presenter calls it once per second.
func (c *Collector) Tick() {
	bytes := c.bytesCopied.Load()
	files := c.filesCopied.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.ring[c.ringIdx] = sample{bytes: bytes - c.lastBytes, files: files - c.lastFiles}
	c.lastBytes = bytes
	c.lastFiles = files

	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSpeed returns average bytes/sec over the last n seconds of samples.
func (c *Collector) RollingSpeed(seconds int) float64 {
	return c.rollingAvg(seconds, func(s sample) int64 { return s.bytes })
}

// RollingFilesPerSec returns average files/sec over the last n seconds.
func (c *Collector) RollingFilesPerSec(seconds int) float64 {
	return c.rollingAvg(seconds, func(s sample) int64 { return s.files })
}

func (c *Collector) rollingAvg(n int, field func(sample) int64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := min(n, c.ringCount)
	if count == 0 {
		return 0
	}
	var sum int64
	for i := range count {
		idx := (c.ringIdx - 1 - i + ringSize) % ringSize
		sum += field(c.ring[idx])
	}
	return float64(sum) / float64(count)
}

// SparklineData returns up to n bytes/sec samples, oldest first.
func (c *Collector) SparklineData(n int) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := min(n, c.ringCount)
	if count == 0 {
		return nil
	}
	data := make([]float64, count)
	for i := range count {
		idx := (c.ringIdx - count + i + ringSize) % ringSize
		data[i] = float64(c.ring[idx].bytes)
	}
	return data
}

// ETA estimates time remaining from the 10-second rolling speed.
func (c *Collector) ETA() time.Duration {
	remaining := c.bytesTotal.Load() - c.bytesCopied.Load()
	if remaining <= 0 {
		return 0
	}
	speed := c.RollingSpeed(10)
	if speed <= 0 {
		return 0
	}
	return time.Duration(float64(remaining)/speed) * time.Second
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"scanned=%d copied=%d failed=%d skipped=%d deleted=%d bytes=%d dirs=%d symlinks=%d",
		s.FilesScanned, s.FilesCopied, s.FilesFailed, s.FilesSkipped,
		s.FilesDeleted, s.BytesCopied, s.DirsCreated, s.SymlinksCreated,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	val, exp := float64(b), 0
	for val >= unit {
		val /= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", val, "KMGTPE"[exp-1])
}
