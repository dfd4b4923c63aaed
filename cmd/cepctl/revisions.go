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
	"fmt"
	"io"
	"sort"

	"github.com/rulego/streamcep/persistence"
	"github.com/rulego/streamcep/types"
	"github.com/rulego/streamcep/utils/table"
	"github.com/spf13/cobra"
)

func newRevisionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revisions <runtime>",
		Short: "List the revisions stored for a runtime, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openConfiguredStore()
			if err != nil {
				return err
			}
			defer closeStore()
			lister, ok := store.(persistence.Lister)
			if !ok {
				return fmt.Errorf("store %T cannot list revisions", store)
			}
			revs, err := lister.Revisions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, rev := range revs {
				fmt.Fprintln(cmd.OutOrStdout(), rev)
			}
			return nil
		},
	}
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <runtime> [revision]",
		Short: "Show the operators and blob sizes of a revision (default: the last one)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := openConfiguredStore()
			if err != nil {
				return err
			}
			defer closeStore()

			ctx := cmd.Context()
			runtimeID := args[0]
			var revision string
			if len(args) == 2 {
				revision = args[1]
			} else if revision, err = store.LastRevision(ctx, runtimeID); err != nil {
				return err
			}
			blobs, err := store.Load(ctx, runtimeID, revision)
			if err != nil {
				return err
			}
			printRevision(cmd.OutOrStdout(), revision, blobs)
			return nil
		},
	}
}

func printRevision(w io.Writer, revision string, blobs map[string][]byte) {
	ids := make([]string, 0, len(blobs))
	for id := range blobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	fmt.Fprintf(w, "revision %s (%d operators)\n", revision, len(ids))
	rows := make([][]interface{}, len(ids))
	for i, id := range ids {
		rows[i] = []interface{}{id, len(blobs[id])}
	}
	table.Print(w, []string{"operator", "bytes"}, rows)
}

// openConfiguredStore opens the store named in --config.
func openConfiguredStore() (persistence.Store, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Store.Type == types.StoreNone || cfg.Store.Type == types.StoreMemory {
		return nil, nil, fmt.Errorf("a durable store must be configured, got %q", cfg.Store.Type)
	}
	store, err := persistence.OpenStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() {
		if c, ok := store.(io.Closer); ok {
			_ = c.Close()
		}
	}
	return store, closeStore, nil
}
