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

package taskdbg

import (
	"github.com/urfave/cli/v2"
)

// Flag names shared across commands.
const (
	FlagFrame    = "frame"
	FlagEncoding = "encoding"
)

// NewApp builds the wire frame inspection tool. It decodes transport
// envelopes captured from a running cluster and prints their contents
// in a readable form.
func NewApp() *cli.App {
	return &cli.App{
		Name:  "taskdbg",
		Usage: "Inspect captured cross-node task frames",
		Commands: []*cli.Command{
			{
				Name:  "decode",
				Usage: "Decode a single transport frame",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  FlagFrame,
						Usage: "Frame bytes, encoded per --encoding",
					},
					&cli.StringFlag{
						Name:  FlagEncoding,
						Usage: "Frame encoding: hex or base64",
						Value: "hex",
					},
				},
				Action: func(c *cli.Context) error {
					return DecodeFrameCommand(c)
				},
			},
			{
				Name:  "types",
				Usage: "List known message types",
				Action: func(c *cli.Context) error {
					return ListTypesCommand(c)
				},
			},
		},
	}
}
