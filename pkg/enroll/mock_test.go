package enroll

import (
	"github.com/MrCodeEU/facewatch/pkg/labels"
)

// frame is one scripted camera read.
type frame struct {
	faces []string
	empty bool
	err   error
}

type MockSampler struct {
	frames   []frame
	calls    int
	seen     []Progress
	NextHook func(p Progress)
}

func (m *MockSampler) Next(p Progress) ([]string, bool, error) {
	m.seen = append(m.seen, p)
	if m.NextHook != nil {
		m.NextHook(p)
	}
	if m.calls >= len(m.frames) {
		m.calls++
		return nil, false, nil
	}
	f := m.frames[m.calls]
	m.calls++
	if f.err != nil {
		return nil, false, f.err
	}
	if f.empty {
		return nil, false, nil
	}
	return append([]string(nil), f.faces...), true, nil
}

// MockModel memorizes samples, so prediction is an exact lookup.
type MockModel struct {
	known       map[string]int
	trainCalls  int
	updateCalls int
	lastBatch   int
	TrainErr    error
}

func NewMockModel() *MockModel {
	return &MockModel{known: make(map[string]int)}
}

func (m *MockModel) Train(samples []string, ids []int) error {
	m.trainCalls++
	if m.TrainErr != nil {
		return m.TrainErr
	}
	m.known = make(map[string]int)
	m.add(samples, ids)
	return nil
}

func (m *MockModel) Update(samples []string, ids []int) error {
	m.updateCalls++
	if m.TrainErr != nil {
		return m.TrainErr
	}
	m.add(samples, ids)
	return nil
}

func (m *MockModel) add(samples []string, ids []int) {
	m.lastBatch = len(samples)
	for i, s := range samples {
		m.known[s] = ids[i]
	}
}

func (m *MockModel) Predict(sample string) int {
	if id, ok := m.known[sample]; ok {
		return id
	}
	return labels.NoMatch
}

type MockStore struct {
	saves   int
	saved   string
	SaveErr error
}

func (m *MockStore) Save(l *labels.Map) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.saves++
	m.saved = l.String()
	return nil
}
