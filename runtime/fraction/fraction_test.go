// The MIT License
//
// Copyright (c) 2020 Temporal Technologies Inc.  All rights reserved.
//
// Copyright (c) 2020 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package fraction

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type fractionSuite struct {
	suite.Suite
	*require.Assertions
}

func TestFractionSuite(t *testing.T) {
	s := new(fractionSuite)
	suite.Run(t, s)
}

func (s *fractionSuite) SetupTest() {
	s.Assertions = require.New(s.T())
}

func (s *fractionSuite) TestSingleSlice() {
	t := NewTracker()
	s.False(t.Whole())
	s.True(t.Add(1))
	s.True(t.Whole())
}

func (s *fractionSuite) TestUniformSplit() {
	t := NewTracker()
	for i := 0; i < 7; i++ {
		s.False(t.Add(8))
	}
	s.True(t.Add(8))
}

func (s *fractionSuite) TestRecursiveSplitConverges() {
	// 1 -> 2 slices (denom 2); each -> 4 slices (denom 8)
	t := NewTracker()
	done := false
	for i := 0; i < 8; i++ {
		done = t.Add(8)
	}
	s.True(done)
}

func (s *fractionSuite) TestUnevenRecursionConverges() {
	// one slice of denom 2 stays terminal, the other splits into 3
	// children of denom 6, one of which splits again into 2 of denom 12.
	t := NewTracker()
	s.False(t.Add(2))
	s.False(t.Add(6))
	s.False(t.Add(6))
	s.False(t.Add(12))
	s.True(t.Add(12))
}

func (s *fractionSuite) TestArbitraryTreeConvergesInAnyOrder() {
	// build a random decomposition tree, then report leaves shuffled
	var leaves []int64
	var build func(denom int64, depth int)
	build = func(denom int64, depth int) {
		if depth == 0 || rand.Intn(3) == 0 {
			leaves = append(leaves, denom)
			return
		}
		children := 2 + rand.Intn(4)
		child := ChildDenominator(denom, children)
		for i := 0; i < children; i++ {
			build(child, depth-1)
		}
	}
	build(1, 5)

	rand.Shuffle(len(leaves), func(i, j int) { leaves[i], leaves[j] = leaves[j], leaves[i] })

	t := NewTracker()
	for i, d := range leaves {
		done := t.Add(d)
		s.Equal(i == len(leaves)-1, done, "sum %v after %d of %d leaves", t, i+1, len(leaves))
	}
}

func (s *fractionSuite) TestConcurrentAdds() {
	t := NewTracker()
	var wg sync.WaitGroup
	var mu sync.Mutex
	doneCount := 0
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if t.Add(64) {
				mu.Lock()
				doneCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.True(t.Whole())
	s.Equal(1, doneCount)
}

func (s *fractionSuite) TestOvershootPanics() {
	t := NewTracker()
	t.Add(2)
	t.Add(2)
	s.Panics(func() { t.Add(2) })
}

func (s *fractionSuite) TestChildDenominator() {
	s.Equal(int64(8), ChildDenominator(2, 4))
	s.Panics(func() { ChildDenominator(0, 4) })
	s.Panics(func() { ChildDenominator(1<<62, 4) })
}
