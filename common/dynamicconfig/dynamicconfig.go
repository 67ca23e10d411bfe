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

package dynamicconfig

import (
	"sync"
	"time"
)

type (
	// Key names a dynamically reloadable setting.
	Key string

	// Client resolves dynamic settings. Lookups happen on every property
	// call so values can change between calls.
	Client interface {
		GetIntValue(key Key, defaultValue int) int
		GetInt64Value(key Key, defaultValue int64) int64
		GetFloatValue(key Key, defaultValue float64) float64
		GetBoolValue(key Key, defaultValue bool) bool
		GetDurationValue(key Key, defaultValue time.Duration) time.Duration
	}

	IntPropertyFn      func() int
	Int64PropertyFn    func() int64
	FloatPropertyFn    func() float64
	BoolPropertyFn     func() bool
	DurationPropertyFn func() time.Duration

	// Collection wraps a Client with typed property accessors.
	Collection struct {
		client Client
	}

	// StaticClient serves fixed values, for tests and defaults.
	StaticClient struct {
		mu     sync.RWMutex
		values map[Key]interface{}
	}
)

func NewCollection(client Client) *Collection {
	return &Collection{client: client}
}

func (c *Collection) GetIntProperty(key Key, defaultValue int) IntPropertyFn {
	return func() int {
		return c.client.GetIntValue(key, defaultValue)
	}
}

func (c *Collection) GetInt64Property(key Key, defaultValue int64) Int64PropertyFn {
	return func() int64 {
		return c.client.GetInt64Value(key, defaultValue)
	}
}

func (c *Collection) GetFloatProperty(key Key, defaultValue float64) FloatPropertyFn {
	return func() float64 {
		return c.client.GetFloatValue(key, defaultValue)
	}
}

func (c *Collection) GetBoolProperty(key Key, defaultValue bool) BoolPropertyFn {
	return func() bool {
		return c.client.GetBoolValue(key, defaultValue)
	}
}

func (c *Collection) GetDurationProperty(key Key, defaultValue time.Duration) DurationPropertyFn {
	return func() time.Duration {
		return c.client.GetDurationValue(key, defaultValue)
	}
}

// NewStaticClient returns a Client that always falls back to defaults
// unless a value is explicitly set.
func NewStaticClient() *StaticClient {
	return &StaticClient{values: make(map[Key]interface{})}
}

// Set overrides a key. The stored value must match the type it is read as.
func (c *StaticClient) Set(key Key, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

func (c *StaticClient) GetIntValue(key Key, defaultValue int) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.values[key].(int); ok {
		return v
	}
	return defaultValue
}

func (c *StaticClient) GetInt64Value(key Key, defaultValue int64) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.values[key].(int64); ok {
		return v
	}
	return defaultValue
}

func (c *StaticClient) GetFloatValue(key Key, defaultValue float64) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.values[key].(float64); ok {
		return v
	}
	return defaultValue
}

func (c *StaticClient) GetBoolValue(key Key, defaultValue bool) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.values[key].(bool); ok {
		return v
	}
	return defaultValue
}

func (c *StaticClient) GetDurationValue(key Key, defaultValue time.Duration) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.values[key].(time.Duration); ok {
		return v
	}
	return defaultValue
}
