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

package predicates

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type predicatesSuite struct {
	suite.Suite
	*require.Assertions
}

func TestPredicatesSuite(t *testing.T) {
	s := new(predicatesSuite)
	suite.Run(t, s)
}

func (s *predicatesSuite) SetupTest() {
	s.Assertions = require.New(s.T())
}

func member(nums ...int) Predicate[int] {
	set := make(map[int]struct{}, len(nums))
	for _, n := range nums {
		set[n] = struct{}{}
	}
	return PredicateFunc[int](func(n int) bool {
		_, ok := set[n]
		return ok
	})
}

func (s *predicatesSuite) TestAnd() {
	p := And(member(1, 2, 6), member(4, 5, 6))

	for i := 1; i != 6; i++ {
		s.False(p.Test(i))
	}
	s.True(p.Test(6))
}

func (s *predicatesSuite) TestAndSimplification() {
	p := And(member(1, 2, 3), Everything[int]())
	for i := 1; i != 4; i++ {
		s.True(p.Test(i))
	}
	s.False(p.Test(4))

	p = And(member(1, 2, 3), Nothing[int]())
	for i := 1; i != 4; i++ {
		s.False(p.Test(i))
	}

	s.True(And[int]().Test(42))
	nested := And(And(member(1), member(1, 2)), member(1, 3))
	s.True(nested.Test(1))
	s.False(nested.Test(2))
}

func (s *predicatesSuite) TestOr() {
	p := Or(member(1, 2), member(4, 5))

	s.True(p.Test(1))
	s.False(p.Test(3))
	s.True(p.Test(5))
}

func (s *predicatesSuite) TestOrSimplification() {
	p := Or(member(1), Everything[int]())
	s.True(p.Test(100))

	p = Or(member(1), Nothing[int]())
	s.True(p.Test(1))
	s.False(p.Test(2))

	s.False(Or[int]().Test(42))
}

func (s *predicatesSuite) TestNot() {
	p := Not(member(1, 2))
	s.False(p.Test(1))
	s.True(p.Test(3))

	s.True(Not(Nothing[int]()).Test(0))
	s.False(Not(Everything[int]()).Test(0))

	inner := member(7)
	s.Equal(inner.Test(7), Not(Not(inner)).Test(7))
	s.Equal(inner.Test(8), Not(Not(inner)).Test(8))
}
