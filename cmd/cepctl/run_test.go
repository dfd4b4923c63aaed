package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rulego/streamcep/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPlan = `
name: stocks
streams:
  - id: StockStream
    attributes:
      - {name: symbol, type: string}
      - {name: price, type: float}
      - {name: volume, type: int}
queries:
  - name: query1
    from:
      stream: StockStream
      filter: price > 10
      window: {type: length, length: 10}
    select:
      - attr: symbol
      - agg: sum
        attr: volume
        as: totalVol
`

func writePlan(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testPlan), 0o644))
	return path
}

func decodeOutput(t *testing.T, out *bytes.Buffer) []outputLine {
	t.Helper()
	var lines []outputLine
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		var line outputLine
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	return lines
}

func TestRunPlan_PersistAndRestore(t *testing.T) {
	cfg := types.DefaultConfig()
	cfg.LogLevel = "off"
	cfg.Store.Type = types.StoreBolt
	cfg.Store.Path = filepath.Join(t.TempDir(), "revisions.db")
	planFile := writePlan(t)

	input := strings.Join([]string{
		`{"stream":"StockStream","data":["IBM",75.6,100],"timestamp":1}`,
		`not json`,
		`{"stream":"Nope","data":[]}`,
		`{"stream":"StockStream","data":["WSO2",5,100]}`,
		`{"stream":"StockStream","data":["WSO2",75.6,100],"timestamp":2}`,
	}, "\n")
	var out bytes.Buffer
	err := runPlan(context.Background(), cfg, runOptions{planFile: planFile, persistOnExit: true}, strings.NewReader(input), &out)
	require.NoError(t, err)

	lines := decodeOutput(t, &out)
	require.Len(t, lines, 2)
	assert.Equal(t, "query1", lines[1].Query)
	assert.Equal(t, int64(2), lines[1].Timestamp)
	assert.Equal(t, []interface{}{"WSO2", float64(200)}, lines[1].In[0])

	out.Reset()
	input = `{"stream":"StockStream","data":["GOOG",50,100],"timestamp":3}`
	err = runPlan(context.Background(), cfg, runOptions{planFile: planFile, restore: true}, strings.NewReader(input), &out)
	require.NoError(t, err)
	lines = decodeOutput(t, &out)
	require.Len(t, lines, 1)
	assert.Equal(t, []interface{}{"GOOG", float64(300)}, lines[0].In[0])
}

func TestRunPlan_RestoreWithoutRevision(t *testing.T) {
	cfg := types.DefaultConfig()
	cfg.LogLevel = "off"
	cfg.Store.Type = types.StoreMemory
	err := runPlan(context.Background(), cfg, runOptions{planFile: writePlan(t), restore: true}, strings.NewReader(""), &bytes.Buffer{})
	assert.ErrorIs(t, err, types.ErrRevisionNotFound)
}

func TestPrintRevision(t *testing.T) {
	var buf bytes.Buffer
	printRevision(&buf, "r1", map[string][]byte{"q/window": {1, 2}, "q/aggregator": {3}})
	out := buf.String()
	assert.Contains(t, out, "revision r1 (2 operators)")
	assert.Less(t, strings.Index(out, "q/aggregator"), strings.Index(out, "q/window"))
}

func TestRootCmd_Revisions(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("logLevel: \"off\"\nstore:\n  type: sqlite\n  path: "+filepath.Join(dir, "r.sqlite")+"\n"), 0o644))

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", cfgFile, "revisions", "stocks"})
	require.NoError(t, root.Execute())
	assert.Empty(t, out.String())

	root = newRootCmd()
	root.SetArgs([]string{"--config", cfgFile, "inspect", "stocks"})
	assert.ErrorIs(t, root.Execute(), types.ErrRevisionNotFound)
}

func TestRunPlan_TableFormat(t *testing.T) {
	cfg := types.DefaultConfig()
	cfg.LogLevel = "off"
	input := `{"stream":"StockStream","data":["IBM",75.6,100],"timestamp":7}`
	var out bytes.Buffer
	err := runPlan(context.Background(), cfg, runOptions{planFile: writePlan(t), format: "table"}, strings.NewReader(input), &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "| query  | kind | timestamp | symbol | totalVol |")
	assert.Contains(t, out.String(), "| query1 | in   | 7         | IBM    | 100      |")

	err = runPlan(context.Background(), cfg, runOptions{planFile: writePlan(t), format: "xml"}, strings.NewReader(""), &out)
	assert.Error(t, err)
}
