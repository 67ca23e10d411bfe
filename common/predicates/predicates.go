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

// Package predicates provides composable boolean filters. The steal
// driver uses them to decide which work items a node will hand out.
package predicates

type (
	// Predicate is a boolean test over T. Combinators built with And, Or,
	// and Not simplify themselves around Everything and Nothing so filter
	// chains stay shallow.
	Predicate[T any] interface {
		Test(T) bool
	}

	// PredicateFunc adapts a plain function into a Predicate.
	PredicateFunc[T any] func(T) bool
)

func (f PredicateFunc[T]) Test(t T) bool {
	return f(t)
}

type everything[T any] struct{}

func (everything[T]) Test(T) bool { return true }

type nothing[T any] struct{}

func (nothing[T]) Test(T) bool { return false }

// Everything admits every value.
func Everything[T any]() Predicate[T] {
	return everything[T]{}
}

// Nothing rejects every value.
func Nothing[T any]() Predicate[T] {
	return nothing[T]{}
}

type conjunction[T any] struct {
	terms []Predicate[T]
}

func (c conjunction[T]) Test(t T) bool {
	for _, term := range c.terms {
		if !term.Test(t) {
			return false
		}
	}
	return true
}

// And holds when all terms hold. Nested conjunctions are inlined,
// Everything terms drop out, and a Nothing term collapses the whole
// predicate. And() with no terms is Everything.
func And[T any](terms ...Predicate[T]) Predicate[T] {
	merged := make([]Predicate[T], 0, len(terms))
	for _, term := range terms {
		switch term := term.(type) {
		case conjunction[T]:
			merged = append(merged, term.terms...)
		case everything[T]:
		case nothing[T]:
			return term
		default:
			merged = append(merged, term)
		}
	}
	switch len(merged) {
	case 0:
		return Everything[T]()
	case 1:
		return merged[0]
	}
	return conjunction[T]{terms: merged}
}

type disjunction[T any] struct {
	terms []Predicate[T]
}

func (d disjunction[T]) Test(t T) bool {
	for _, term := range d.terms {
		if term.Test(t) {
			return true
		}
	}
	return false
}

// Or holds when any term holds. Nested disjunctions are inlined, Nothing
// terms drop out, and an Everything term collapses the whole predicate.
// Or() with no terms is Nothing.
func Or[T any](terms ...Predicate[T]) Predicate[T] {
	merged := make([]Predicate[T], 0, len(terms))
	for _, term := range terms {
		switch term := term.(type) {
		case disjunction[T]:
			merged = append(merged, term.terms...)
		case nothing[T]:
		case everything[T]:
			return term
		default:
			merged = append(merged, term)
		}
	}
	switch len(merged) {
	case 0:
		return Nothing[T]()
	case 1:
		return merged[0]
	}
	return disjunction[T]{terms: merged}
}

type negation[T any] struct {
	inner Predicate[T]
}

func (n negation[T]) Test(t T) bool {
	return !n.inner.Test(t)
}

// Not inverts the predicate. Double negation unwraps, and the Everything
// and Nothing constants swap.
func Not[T any](p Predicate[T]) Predicate[T] {
	switch p := p.(type) {
	case negation[T]:
		return p.inner
	case everything[T]:
		return Nothing[T]()
	case nothing[T]:
		return Everything[T]()
	}
	return negation[T]{inner: p}
}
