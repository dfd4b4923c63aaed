/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rulego/streamcep"
	"github.com/rulego/streamcep/stream"
	"github.com/rulego/streamcep/types"
	"github.com/rulego/streamcep/utils/table"
	"github.com/spf13/cobra"
)

type runOptions struct {
	planFile      string
	inputFile     string
	restore       bool
	revision      string
	persistOnExit bool
	format        string
}

// inputLine is one event on stdin.
type inputLine struct {
	Stream    string        `json:"stream"`
	Data      []interface{} `json:"data"`
	Timestamp *int64        `json:"timestamp,omitempty"`
}

// outputLine is one callback invocation on stdout.
type outputLine struct {
	Query     string          `json:"query"`
	Timestamp int64           `json:"timestamp"`
	In        [][]interface{} `json:"in,omitempty"`
	Removed   [][]interface{} `json:"removed,omitempty"`
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a plan over JSON lines read from stdin",
		Long: `Run compiles the plan, optionally restores a revision, then reads events as
JSON lines ({"stream":"StockStream","data":["IBM",75.6,100]}) and writes every
query callback as a JSON line to stdout.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			in := io.Reader(os.Stdin)
			if opts.inputFile != "" {
				f, err := os.Open(opts.inputFile)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runPlan(ctx, cfg, opts, in, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&opts.planFile, "plan", "p", "", "plan file (YAML)")
	cmd.Flags().StringVarP(&opts.inputFile, "input", "i", "", "read events from a file instead of stdin")
	cmd.Flags().BoolVar(&opts.restore, "restore", false, "restore the last revision before reading events")
	cmd.Flags().StringVar(&opts.revision, "revision", "", "restore this revision before reading events")
	cmd.Flags().BoolVar(&opts.persistOnExit, "persist-on-exit", false, "persist a revision before shutting down")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "json", "output format: json or table")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

func runPlan(ctx context.Context, cfg types.Config, opts runOptions, in io.Reader, out io.Writer) (err error) {
	plan, err := types.LoadPlan(opts.planFile)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	rt, err := streamcep.New(plan, streamcep.WithConfig(cfg), streamcep.WithLogger(log))
	if err != nil {
		return err
	}
	defer func() {
		if serr := rt.Shutdown(); serr != nil && err == nil {
			err = serr
		}
	}()

	var mu sync.Mutex
	enc := json.NewEncoder(out)
	for _, q := range plan.Queries {
		name := q.Name
		def, err := rt.OutputDefinition(name)
		if err != nil {
			return err
		}
		columns := []string{"query", "kind", "timestamp"}
		for _, a := range def.Attributes {
			columns = append(columns, a.Name)
		}
		var cb stream.Callback
		switch opts.format {
		case "", "json":
			cb = func(ts int64, inEvents, removed []types.Event) {
				line := outputLine{Query: name, Timestamp: ts, In: eventData(inEvents), Removed: eventData(removed)}
				mu.Lock()
				defer mu.Unlock()
				if err := enc.Encode(line); err != nil {
					log.Error("write output: %v", err)
				}
			}
		case "table":
			cb = func(ts int64, inEvents, removed []types.Event) {
				rows := append(tableRows(name, "in", inEvents), tableRows(name, "removed", removed)...)
				mu.Lock()
				defer mu.Unlock()
				table.Print(out, columns, rows)
			}
		default:
			return fmt.Errorf("unknown output format %q", opts.format)
		}
		if err := rt.AddCallback(name, cb); err != nil {
			return err
		}
	}
	if err := rt.Start(); err != nil {
		return err
	}

	switch {
	case opts.revision != "":
		if err := rt.RestoreRevision(ctx, opts.revision); err != nil {
			return err
		}
	case opts.restore:
		rev, err := rt.RestoreLastRevision(ctx)
		if err != nil {
			return err
		}
		log.Info("restored revision %s", rev)
	}

	if err := feed(ctx, rt, in); err != nil {
		return err
	}

	if opts.persistOnExit {
		rev, err := rt.Persist(context.WithoutCancel(ctx))
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "revision %s\n", rev)
	}
	return nil
}

// feed sends every input line until EOF or cancellation. Malformed lines
// and rejected events are logged and skipped.
func feed(ctx context.Context, rt *streamcep.Runtime, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		lineNo++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var line inputLine
		if err := json.Unmarshal(raw, &line); err != nil {
			fmt.Fprintf(os.Stderr, "line %d: %v\n", lineNo, err)
			continue
		}
		h, err := rt.InputHandler(line.Stream)
		if err != nil {
			fmt.Fprintf(os.Stderr, "line %d: %v\n", lineNo, err)
			continue
		}
		if line.Timestamp != nil {
			err = h.SendWithTimestamp(*line.Timestamp, line.Data...)
		} else {
			err = h.Send(line.Data...)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "line %d: %v\n", lineNo, err)
		}
	}
	return scanner.Err()
}

func tableRows(query, kind string, events []types.Event) [][]interface{} {
	rows := make([][]interface{}, 0, len(events))
	for _, e := range events {
		row := append([]interface{}{query, kind, e.Timestamp}, e.Data...)
		rows = append(rows, row)
	}
	return rows
}

func eventData(events []types.Event) [][]interface{} {
	if len(events) == 0 {
		return nil
	}
	out := make([][]interface{}, len(events))
	for i, e := range events {
		out[i] = e.Data
	}
	return out
}
