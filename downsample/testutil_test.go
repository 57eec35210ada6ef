package downsample

import (
	"fmt"
	"io"
	"time"
)

// sliceSource yields a fixed list of units.
type sliceSource struct {
	units []Unit
	calls int
	err   error // returned after units are exhausted, instead of io.EOF
}

func (s *sliceSource) Next() (Unit, error) {
	s.calls++
	if len(s.units) == 0 {
		if s.err != nil {
			return Unit{}, s.err
		}
		return Unit{}, io.EOF
	}
	u := s.units[0]
	s.units = s.units[1:]
	return u, nil
}

// memSink records written blocks and the order of events.
type memSink struct {
	blocks   [][]byte
	closed   bool
	events   *[]string
	failAt   int // fail the failAt'th write, 1-based; 0 never fails
	closeErr error
}

func (s *memSink) WriteBlock(b []byte) error {
	if s.failAt > 0 && len(s.blocks)+1 == s.failAt {
		return fmt.Errorf("disk full")
	}
	s.blocks = append(s.blocks, append([]byte(nil), b...))
	return nil
}

func (s *memSink) Close() error {
	s.closed = true
	if s.events != nil {
		*s.events = append(*s.events, "close")
	}
	return s.closeErr
}

type testFinalizer struct {
	name   string
	events *[]string
	err    error
}

func (f *testFinalizer) Finalize() error {
	*f.events = append(*f.events, f.name)
	return f.err
}

func single(name string) Unit {
	return Unit{Kind: Single, Name: []byte(name), Blocks: [][]byte{[]byte(name)}}
}

func pair(name string) Unit {
	return Unit{
		Kind:   Paired,
		Name:   []byte(name),
		Blocks: [][]byte{[]byte(name + "/1"), []byte(name + "/2")},
	}
}

func mixedUnits(n int) []Unit {
	var units []Unit
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("read%d", i)
		switch i % 4 {
		case 0:
			units = append(units, pair(name))
		case 1:
			units = append(units, single(name))
		case 2:
			u := single(name)
			u.Kind = OrphanFirst
			units = append(units, u)
		case 3:
			u := single(name)
			u.Kind = OrphanSecond
			units = append(units, u)
		}
	}
	return units
}

func mustEngine(opts Opts) *Engine {
	e, err := NewEngine(opts)
	if err != nil {
		panic(err)
	}
	return e
}

// fakeClock advances by step on every call.
type fakeClock struct {
	t    time.Time
	step time.Duration
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}
