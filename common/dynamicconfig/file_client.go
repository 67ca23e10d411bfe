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
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/gabrieltanase42/legion/common/log"
	"github.com/gabrieltanase42/legion/common/log/tag"
)

type (
	// FileClient reads dynamic settings from a yaml file of the form
	//
	//   worker.count: 8
	//   steal.rateLimit: 100.0
	//
	// and re-reads it whenever the file changes on disk.
	FileClient struct {
		path    string
		logger  log.Logger
		watcher *fsnotify.Watcher

		mu     sync.RWMutex
		values map[Key]interface{}

		shutdownCh chan struct{}
		shutdownWG sync.WaitGroup
	}
)

var _ Client = (*FileClient)(nil)

// NewFileClient loads the file once and starts watching it. Close must be
// called to release the watcher.
func NewFileClient(path string, logger log.Logger) (*FileClient, error) {
	c := &FileClient{
		path:       path,
		logger:     logger,
		values:     make(map[Key]interface{}),
		shutdownCh: make(chan struct{}),
	}
	if err := c.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	c.watcher = watcher

	c.shutdownWG.Add(1)
	go c.watchLoop()
	return c, nil
}

func (c *FileClient) Close() {
	close(c.shutdownCh)
	_ = c.watcher.Close()
	c.shutdownWG.Wait()
}

func (c *FileClient) watchLoop() {
	defer c.shutdownWG.Done()
	for {
		select {
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := c.reload(); err != nil {
				c.logger.Warn("failed to reload dynamic config", tag.Error(err))
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Warn("dynamic config watcher error", tag.Error(err))
		case <-c.shutdownCh:
			return
		}
	}
}

func (c *FileClient) reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return err
	}
	raw := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}

	values := make(map[Key]interface{}, len(raw))
	for k, v := range raw {
		values[Key(k)] = v
	}

	c.mu.Lock()
	c.values = values
	c.mu.Unlock()
	return nil
}

func (c *FileClient) get(key Key) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

func (c *FileClient) GetIntValue(key Key, defaultValue int) int {
	if v, ok := c.get(key); ok {
		if n, ok := v.(int); ok {
			return n
		}
	}
	return defaultValue
}

func (c *FileClient) GetInt64Value(key Key, defaultValue int64) int64 {
	if v, ok := c.get(key); ok {
		switch n := v.(type) {
		case int:
			return int64(n)
		case int64:
			return n
		}
	}
	return defaultValue
}

func (c *FileClient) GetFloatValue(key Key, defaultValue float64) float64 {
	if v, ok := c.get(key); ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return defaultValue
}

func (c *FileClient) GetBoolValue(key Key, defaultValue bool) bool {
	if v, ok := c.get(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultValue
}

func (c *FileClient) GetDurationValue(key Key, defaultValue time.Duration) time.Duration {
	if v, ok := c.get(key); ok {
		if s, ok := v.(string); ok {
			if d, err := time.ParseDuration(s); err == nil {
				return d
			}
		}
	}
	return defaultValue
}
