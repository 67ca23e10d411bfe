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

package tag

type (
	// Tag is a structured logging key/value pair.
	Tag struct {
		key   string
		value interface{}
	}
)

func (t Tag) Key() string {
	return t.key
}

func (t Tag) Value() interface{} {
	return t.value
}

// NewStringTag returns a tag with a string value.
func NewStringTag(key string, value string) Tag {
	return Tag{key: key, value: value}
}

// NewInt64Tag returns a tag with an int64 value.
func NewInt64Tag(key string, value int64) Tag {
	return Tag{key: key, value: value}
}

// NewIntTag returns a tag with an int value.
func NewIntTag(key string, value int) Tag {
	return Tag{key: key, value: value}
}

// NewBoolTag returns a tag with a bool value.
func NewBoolTag(key string, value bool) Tag {
	return Tag{key: key, value: value}
}

// NewAnyTag returns a tag with an arbitrary value.
func NewAnyTag(key string, value interface{}) Tag {
	return Tag{key: key, value: value}
}

// NewErrorTag returns the canonical error tag.
func NewErrorTag(err error) Tag {
	return Tag{key: "error", value: err}
}
