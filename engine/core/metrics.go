package core

import "sync"

const AVG_COUNT uint8 = 30

// Metrics keeps a rolling frame-time average plus counters for instance
// command replay, which runs on the render thread while frames are
// measured on the game thread.
type Metrics struct {
	mu sync.Mutex

	frameAVGCounter    uint8
	msTimes            [AVG_COUNT]float64
	msAvg              float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64

	commandsReplayed uint64
	commandsSkipped  uint64
	bufferUploads    uint64
	uploadedBytes    uint64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) Update(frameElapsedTime float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Calculate frame ms average
	frameMS := frameElapsedTime * 1000.0
	m.msTimes[m.frameAVGCounter] = frameMS
	if m.frameAVGCounter == AVG_COUNT-1 {
		m.msAvg = 0
		for i := uint8(0); i < AVG_COUNT; i++ {
			m.msAvg += m.msTimes[i]
		}
		m.msAvg /= float64(AVG_COUNT)
	}
	m.frameAVGCounter++
	m.frameAVGCounter %= AVG_COUNT

	// Calculate Frames per second.
	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}

	// Count all Frames.
	m.frames++
}

func (m *Metrics) RecordReplay(replayed, skipped int) {
	m.mu.Lock()
	m.commandsReplayed += uint64(replayed)
	m.commandsSkipped += uint64(skipped)
	m.mu.Unlock()
}

func (m *Metrics) RecordUpload(bytes int) {
	m.mu.Lock()
	m.bufferUploads++
	m.uploadedBytes += uint64(bytes)
	m.mu.Unlock()
}

func (m *Metrics) Frame() (float64, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fps, m.msAvg
}

// Replay returns the replayed and skipped command totals.
func (m *Metrics) Replay() (uint64, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commandsReplayed, m.commandsSkipped
}

// Uploads returns the number of buffer uploads and the bytes they moved.
func (m *Metrics) Uploads() (uint64, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bufferUploads, m.uploadedBytes
}

var defaultMetrics = NewMetrics()

// DefaultMetrics is the process-wide metrics sink used when no other is wired.
func DefaultMetrics() *Metrics {
	return defaultMetrics
}
