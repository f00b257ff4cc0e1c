package main

import "fmt"

// AnonymizationMap is the run-scoped bidirectional mapping between anonymous
// labels and the (model, instance) pairs behind them. Labels are assigned in
// collection order of the surviving stage-1 responses: first collected
// response becomes "Response A", and so on. The map is created at run start
// and discarded with the run; labels never appear de-anonymized in any text
// sent back to a model.
type AnonymizationMap struct {
	labels   []string
	byLabel  map[string]LabelTarget
	byTarget map[LabelTarget]string
}

// anonymize assigns sequential labels to an ordered batch of surviving
// responses and builds the map for the run.
func anonymize(responses []ModelResponse) *AnonymizationMap {
	m := &AnonymizationMap{
		byLabel:  make(map[string]LabelTarget, len(responses)),
		byTarget: make(map[LabelTarget]string, len(responses)),
	}
	for i, response := range responses {
		label := fmt.Sprintf("Response %c", rune('A'+i))
		target := LabelTarget{Model: response.Model, Instance: response.Instance}
		m.labels = append(m.labels, label)
		m.byLabel[label] = target
		m.byTarget[target] = label
	}
	return m
}

// Resolve maps a label back to its (model, instance) pair. The second return
// is false for labels that are not part of this run, such as ones a model
// hallucinated.
func (m *AnonymizationMap) Resolve(label string) (LabelTarget, bool) {
	target, ok := m.byLabel[label]
	return target, ok
}

// LabelFor is the inverse of Resolve.
func (m *AnonymizationMap) LabelFor(model string, instance int) (string, bool) {
	label, ok := m.byTarget[LabelTarget{Model: model, Instance: instance}]
	return label, ok
}

// Labels returns the labels in assignment order.
func (m *AnonymizationMap) Labels() []string {
	labels := make([]string, len(m.labels))
	copy(labels, m.labels)
	return labels
}

// Len returns the number of labeled responses.
func (m *AnonymizationMap) Len() int {
	return len(m.labels)
}

// LabelToModel returns a copy of the label mapping for presentation to the
// caller after the run completes.
func (m *AnonymizationMap) LabelToModel() map[string]LabelTarget {
	out := make(map[string]LabelTarget, len(m.byLabel))
	for label, target := range m.byLabel {
		out[label] = target
	}
	return out
}
