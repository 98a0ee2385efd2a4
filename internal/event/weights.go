package event

import (
	"errors"
	"fmt"
	"iter"
	"math"
)

// ErrWeightNotFound is matched by every NotFoundError through errors.Is.
var ErrWeightNotFound = errors.New("weight not found")

// NotFoundError is returned by WeightTable.Get for a model name that has no
// entry.
type NotFoundError struct {
	Model string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no weight stored for model %q", e.Model)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrWeightNotFound
}

// Weight is one named entry of a WeightTable.
type Weight struct {
	Model string
	Value float64
}

// WeightTable maps flux model names to non-negative weights. A name occurs at
// most once and entries keep their insertion order. The zero value is an
// empty table.
type WeightTable struct {
	entries []Weight
}

func (t *WeightTable) index(model string) int {
	for i, w := range t.entries {
		if w.Model == model {
			return i
		}
	}
	return -1
}

// Fill stores v under model, replacing any previous entry of that name.
func (t *WeightTable) Fill(model string, v float64) error {
	if model == "" {
		return errors.New("weight: empty model name")
	}
	if math.IsNaN(v) || v < 0 {
		return fmt.Errorf("weight: invalid value %v for model %q", v, model)
	}
	if i := t.index(model); i >= 0 {
		t.entries[i].Value = v
		return nil
	}
	t.entries = append(t.entries, Weight{Model: model, Value: v})
	return nil
}

// Remove deletes the entry for model. Removing an absent name does nothing.
func (t *WeightTable) Remove(model string) {
	i := t.index(model)
	if i < 0 {
		return
	}
	t.entries = append(t.entries[:i], t.entries[i+1:]...)
	if len(t.entries) == 0 {
		t.entries = nil
	}
}

// Get returns the weight stored under model or a *NotFoundError.
func (t *WeightTable) Get(model string) (float64, error) {
	if i := t.index(model); i >= 0 {
		return t.entries[i].Value, nil
	}
	return 0, &NotFoundError{Model: model}
}

func (t *WeightTable) Has(model string) bool {
	return t.index(model) >= 0
}

func (t *WeightTable) Len() int {
	return len(t.entries)
}

// All iterates the entries in insertion order.
func (t *WeightTable) All() iter.Seq2[string, float64] {
	return func(yield func(string, float64) bool) {
		for _, w := range t.entries {
			if !yield(w.Model, w.Value) {
				return
			}
		}
	}
}

// Entries returns a copy of the entries in insertion order.
func (t *WeightTable) Entries() []Weight {
	if len(t.entries) == 0 {
		return nil
	}
	return append([]Weight(nil), t.entries...)
}

// Equal compares the name/value pairs, ignoring order.
func (t *WeightTable) Equal(o *WeightTable) bool {
	if t.Len() != o.Len() {
		return false
	}
	for _, w := range t.entries {
		v, err := o.Get(w.Model)
		if err != nil || v != w.Value {
			return false
		}
	}
	return true
}
