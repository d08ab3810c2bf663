// Package sample exposes the bundled sample images and routes a click on one
// into the same submission path as a user-selected file.
package sample

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownSample is returned for a catalogue index that does not exist.
var ErrUnknownSample = errors.New("unknown sample")

// Catalogue is the fixed, ordered list of bundled samples.
var Catalogue = []string{
	"/sample1.jpg",
	"/sample2.jpg",
	"/sample3.jpg",
}

// Consumer is the part of the upload controller a feeder drives.
type Consumer interface {
	ConsumeSample(ctx context.Context, ref string) error
}

// Entry is one catalogue item as rendered on the page.
type Entry struct {
	Index int
	Ref   string
	Alt   string
}

// Feeder maps catalogue positions to sample refs. It holds no state beyond
// the catalogue.
type Feeder struct {
	refs []string
}

// NewFeeder builds a feeder over refs, or over Catalogue when refs is empty.
func NewFeeder(refs ...string) *Feeder {
	if len(refs) == 0 {
		refs = Catalogue
	}
	return &Feeder{refs: append([]string(nil), refs...)}
}

// Entries lists the catalogue with 1-based indexes.
func (f *Feeder) Entries() []Entry {
	entries := make([]Entry, len(f.refs))
	for i, ref := range f.refs {
		entries[i] = Entry{Index: i + 1, Ref: ref, Alt: fmt.Sprintf("Sample %d", i+1)}
	}
	return entries
}

// Ref resolves a 1-based catalogue index.
func (f *Feeder) Ref(index int) (string, error) {
	if index < 1 || index > len(f.refs) {
		return "", fmt.Errorf("%w: %d", ErrUnknownSample, index)
	}
	return f.refs[index-1], nil
}

// Select hands sample index to the consumer.
func (f *Feeder) Select(ctx context.Context, consumer Consumer, index int) error {
	ref, err := f.Ref(index)
	if err != nil {
		return err
	}
	return consumer.ConsumeSample(ctx, ref)
}
