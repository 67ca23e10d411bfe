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
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/gabrieltanase42/legion/runtime/ledger"
	"github.com/gabrieltanase42/legion/runtime/region"
	"github.com/gabrieltanase42/legion/runtime/wire"
)

// DecodeFrameCommand parses one transport frame and prints a summary of
// the envelope and its payload.
func DecodeFrameCommand(c *cli.Context) error {
	raw := c.String(FlagFrame)
	if raw == "" && c.Args().Len() > 0 {
		raw = c.Args().First()
	}
	if raw == "" {
		return cli.Exit("Frame is required", 1)
	}

	var (
		buf []byte
		err error
	)
	switch enc := c.String(FlagEncoding); enc {
	case "hex", "":
		buf, err = hex.DecodeString(raw)
	case "base64":
		buf, err = base64.StdEncoding.DecodeString(raw)
	default:
		return cli.Exit(fmt.Sprintf("Unknown encoding %q", enc), 1)
	}
	if err != nil {
		return fmt.Errorf("unable to decode frame bytes: %w", err)
	}

	env, err := wire.DecodeEnvelope(buf)
	if err != nil {
		return fmt.Errorf("unable to decode envelope: %w", err)
	}
	return printEnvelope(c.App.Writer, env)
}

// ListTypesCommand prints every message type the runtime exchanges.
func ListTypesCommand(c *cli.Context) error {
	for t := wire.MessageTaskSend; t <= wire.MessageStealResponse; t++ {
		fmt.Fprintf(c.App.Writer, "%2d  %v\n", uint8(t), t)
	}
	return nil
}

func printEnvelope(w io.Writer, env wire.Envelope) error {
	fmt.Fprintf(w, "type:     %v\n", env.Type)
	fmt.Fprintf(w, "source:   node %d\n", env.Source)
	fmt.Fprintf(w, "payload:  %d bytes\n", len(env.Payload))

	d := wire.NewDecoder(env.Payload)
	switch env.Type {
	case wire.MessageTaskSend:
		return printTaskSend(w, d)
	case wire.MessageSliceSend:
		return printSliceSend(w, d)
	case wire.MessageSliceMapped, wire.MessageSliceCommit:
		return printSliceProgress(w, d)
	case wire.MessageSliceComplete:
		return printSliceComplete(w, d)
	case wire.MessagePointComplete:
		return printPointComplete(w, d)
	case wire.MessagePointCommit:
		id, err := d.ReadUUID()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "task:     %v\n", id)
		return nil
	case wire.MessageStealRequest:
		return nil
	case wire.MessageStealResponse:
		return printStealResponse(w, env.Source, d)
	default:
		return fmt.Errorf("unknown message type %v", env.Type)
	}
}

// The readers below mirror the runtime's fixed field order. The runtime's
// own decoders reconstitute live tasks against an engine, so the tool
// carries read-only equivalents.

func printTaskSend(w io.Writer, d *wire.Decoder) error {
	id, err := d.ReadUUID()
	if err != nil {
		return err
	}
	home, err := d.ReadUint32()
	if err != nil {
		return err
	}
	ctxIndex, err := d.ReadInt64()
	if err != nil {
		return err
	}
	variant, err := d.ReadInt64()
	if err != nil {
		return err
	}
	point, err := d.ReadPoint()
	if err != nil {
		return err
	}
	args, err := d.ReadBytes()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "task:     %v\n", id)
	fmt.Fprintf(w, "home:     node %d\n", home)
	fmt.Fprintf(w, "context:  slot %d\n", ctxIndex)
	fmt.Fprintf(w, "variant:  %d\n", variant)
	fmt.Fprintf(w, "point:    %v\n", point)
	fmt.Fprintf(w, "args:     %d bytes\n", len(args))

	nf, err := d.ReadUint32()
	if err != nil {
		return err
	}
	resolved := 0
	for i := uint32(0); i < nf; i++ {
		if _, err := d.ReadUUID(); err != nil {
			return err
		}
		has, err := d.ReadBool()
		if err != nil {
			return err
		}
		if has {
			if _, err := d.ReadBytes(); err != nil {
				return err
			}
			resolved++
		}
	}
	fmt.Fprintf(w, "futures:  %d (%d resolved)\n", nf, resolved)

	if err := printRequirements(w, d); err != nil {
		return err
	}

	originMapped, err := d.ReadBool()
	if err != nil {
		return err
	}
	mapped, err := d.ReadBool()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "origin-mapped: %t\n", originMapped)
	if !mapped {
		fmt.Fprintf(w, "mapped:   false\n")
		return nil
	}
	ni, err := d.ReadUint32()
	if err != nil {
		return err
	}
	virtual := 0
	for i := uint32(0); i < ni; i++ {
		isVirtual, err := skipInstanceRef(d)
		if err != nil {
			return err
		}
		if isVirtual {
			virtual++
		}
	}
	fmt.Fprintf(w, "mapped:   true, %d instances (%d virtual)\n", ni, virtual)
	return nil
}

func printSliceSend(w io.Writer, d *wire.Decoder) error {
	id, err := d.ReadUUID()
	if err != nil {
		return err
	}
	indexID, err := d.ReadUUID()
	if err != nil {
		return err
	}
	owner, err := d.ReadUint32()
	if err != nil {
		return err
	}
	ctxIndex, err := d.ReadInt64()
	if err != nil {
		return err
	}
	variant, err := d.ReadInt64()
	if err != nil {
		return err
	}
	launchDomain, err := d.ReadRect()
	if err != nil {
		return err
	}
	dom, err := d.ReadRect()
	if err != nil {
		return err
	}
	denominator, err := d.ReadInt64()
	if err != nil {
		return err
	}
	recurse, err := d.ReadBool()
	if err != nil {
		return err
	}
	stealable, err := d.ReadBool()
	if err != nil {
		return err
	}
	redop, err := d.ReadUint32()
	if err != nil {
		return err
	}
	deterministic, err := d.ReadBool()
	if err != nil {
		return err
	}
	args, err := d.ReadBytes()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "slice:    %v\n", id)
	fmt.Fprintf(w, "index:    %v (owner node %d, context slot %d)\n", indexID, owner, ctxIndex)
	fmt.Fprintf(w, "variant:  %d\n", variant)
	fmt.Fprintf(w, "launch:   %v\n", launchDomain)
	fmt.Fprintf(w, "domain:   %v\n", dom)
	fmt.Fprintf(w, "fraction: 1/%d\n", denominator)
	fmt.Fprintf(w, "recurse:  %t  stealable: %t\n", recurse, stealable)
	if redop != 0 {
		fmt.Fprintf(w, "redop:    %d (deterministic: %t)\n", redop, deterministic)
	}
	fmt.Fprintf(w, "args:     %d bytes\n", len(args))

	na, err := d.ReadUint32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < na; i++ {
		if _, err := d.ReadPoint(); err != nil {
			return err
		}
		if _, err := d.ReadBytes(); err != nil {
			return err
		}
	}
	fmt.Fprintf(w, "arg-map:  %d points\n", na)
	return printRequirements(w, d)
}

func printSliceProgress(w io.Writer, d *wire.Decoder) error {
	id, err := d.ReadUUID()
	if err != nil {
		return err
	}
	denominator, err := d.ReadInt64()
	if err != nil {
		return err
	}
	points, err := d.ReadInt64()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "index:    %v\n", id)
	fmt.Fprintf(w, "fraction: 1/%d\n", denominator)
	fmt.Fprintf(w, "points:   %d\n", points)
	return nil
}

func printSliceComplete(w io.Writer, d *wire.Decoder) error {
	if err := printSliceProgress(w, d); err != nil {
		return err
	}
	led := ledger.New()
	if err := led.DecodeFrom(d); err != nil {
		return err
	}
	printLedger(w, led)
	n, err := d.ReadUint32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		if _, err := d.ReadPoint(); err != nil {
			return err
		}
		if _, err := d.ReadBytes(); err != nil {
			return err
		}
	}
	fmt.Fprintf(w, "results:  %d points\n", n)
	return nil
}

func printPointComplete(w io.Writer, d *wire.Decoder) error {
	id, err := d.ReadUUID()
	if err != nil {
		return err
	}
	result, err := d.ReadBytes()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "task:     %v\n", id)
	fmt.Fprintf(w, "result:   %d bytes\n", len(result))
	led := ledger.New()
	if err := led.DecodeFrom(d); err != nil {
		return err
	}
	printLedger(w, led)
	return nil
}

func printStealResponse(w io.Writer, source wire.NodeID, d *wire.Decoder) error {
	inner, err := d.ReadUint8()
	if err != nil {
		return err
	}
	payload, err := d.ReadBytes()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "stolen:\n")
	return printEnvelope(w, wire.Envelope{
		Type:    wire.MessageType(inner),
		Source:  source,
		Payload: payload,
	})
}

func printRequirements(w io.Writer, d *wire.Decoder) error {
	n, err := d.ReadUint32()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "requirements: %d\n", n)
	for i := uint32(0); i < n; i++ {
		r, err := readRequirement(d)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  [%d] region %v privilege %v coherence %v fields %v\n",
			i, r.Region, r.Privilege, r.Coherence, r.Fields)
		if r.Redop != 0 {
			fmt.Fprintf(w, "      redop %d\n", r.Redop)
		}
	}
	return nil
}

func readRequirement(d *wire.Decoder) (region.Requirement, error) {
	var r region.Requirement
	ht, err := d.ReadUint8()
	if err != nil {
		return r, err
	}
	r.HandleType = region.HandleType(ht)
	if r.Region, err = readLogicalRegion(d); err != nil {
		return r, err
	}
	if r.Partition, err = readLogicalPartition(d); err != nil {
		return r, err
	}
	proj, err := d.ReadUint32()
	if err != nil {
		return r, err
	}
	r.Projection = region.ProjectionID(proj)
	priv, err := d.ReadUint8()
	if err != nil {
		return r, err
	}
	r.Privilege = region.Privilege(priv)
	coh, err := d.ReadUint8()
	if err != nil {
		return r, err
	}
	r.Coherence = region.Coherence(coh)
	redop, err := d.ReadUint32()
	if err != nil {
		return r, err
	}
	r.Redop = region.ReductionOpID(redop)
	if r.Parent, err = readLogicalRegion(d); err != nil {
		return r, err
	}
	n, err := d.ReadUint32()
	if err != nil {
		return r, err
	}
	r.Fields = make([]region.FieldID, n)
	for i := range r.Fields {
		f, err := d.ReadUint32()
		if err != nil {
			return r, err
		}
		r.Fields[i] = region.FieldID(f)
	}
	return r, nil
}

func readLogicalRegion(d *wire.Decoder) (region.LogicalRegion, error) {
	var lr region.LogicalRegion
	tree, err := d.ReadUint64()
	if err != nil {
		return lr, err
	}
	is, err := d.ReadUint64()
	if err != nil {
		return lr, err
	}
	fs, err := d.ReadUint64()
	if err != nil {
		return lr, err
	}
	lr.Tree = region.TreeID(tree)
	lr.IndexSpace = region.IndexSpaceID(is)
	lr.FieldSpace = region.FieldSpaceID(fs)
	return lr, nil
}

func readLogicalPartition(d *wire.Decoder) (region.LogicalPartition, error) {
	var lp region.LogicalPartition
	tree, err := d.ReadUint64()
	if err != nil {
		return lp, err
	}
	part, err := d.ReadUint64()
	if err != nil {
		return lp, err
	}
	fs, err := d.ReadUint64()
	if err != nil {
		return lp, err
	}
	lp.Tree = region.TreeID(tree)
	lp.Partition = region.IndexPartitionID(part)
	lp.FieldSpace = region.FieldSpaceID(fs)
	return lp, nil
}

func skipInstanceRef(d *wire.Decoder) (bool, error) {
	virtual, err := d.ReadBool()
	if err != nil {
		return false, err
	}
	if virtual {
		return true, nil
	}
	if _, err := d.ReadUUID(); err != nil {
		return false, err
	}
	if _, err := d.ReadUint64(); err != nil {
		return false, err
	}
	if _, err := readLogicalRegion(d); err != nil {
		return false, err
	}
	n, err := d.ReadUint32()
	if err != nil {
		return false, err
	}
	for i := uint32(0); i < n; i++ {
		if _, err := d.ReadUint32(); err != nil {
			return false, err
		}
	}
	return false, nil
}

func printLedger(w io.Writer, led *ledger.Ledger) {
	fmt.Fprintf(w, "ledger:   %d created regions, %d deleted regions, %d created fields, %d created index spaces\n",
		len(led.CreatedRegions()), len(led.DeletedRegions()),
		len(led.CreatedFields()), len(led.CreatedIndexSpaces()))
}
