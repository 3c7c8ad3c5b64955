package ml

import (
	"sync"
	"time"
)

// MockMetrics implements TrainingMetrics for testing
type MockMetrics struct {
	mu         sync.Mutex
	epochs     int
	lastTrain  float64
	lastVal    float64
	elapsedSum time.Duration
	nonFinite  int
}

func (m *MockMetrics) EpochObserve(train, validation float64, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epochs++
	m.lastTrain = train
	m.lastVal = validation
	m.elapsedSum += elapsed
}

func (m *MockMetrics) NonFiniteInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nonFinite++
}
