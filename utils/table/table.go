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

package table

import (
	"fmt"
	"io"
	"strings"
)

// Print writes rows as a bordered table. Cells are rendered with %v and nil
// as NULL; rows shorter than columns are padded with empty cells.
func Print(w io.Writer, columns []string, rows [][]interface{}) {
	if len(columns) == 0 {
		return
	}

	cells := make([][]string, len(rows))
	// Calculate maximum width for each column
	colWidths := make([]int, len(columns))
	for i, col := range columns {
		colWidths[i] = len(col)
	}
	for r, row := range rows {
		cells[r] = make([]string, len(columns))
		for i := range columns {
			if i < len(row) {
				cells[r][i] = formatCell(row[i])
			}
			if len(cells[r][i]) > colWidths[i] {
				colWidths[i] = len(cells[r][i])
			}
		}
	}
	// Minimum width is 4
	for i := range colWidths {
		if colWidths[i] < 4 {
			colWidths[i] = 4
		}
	}

	PrintBorder(w, colWidths)
	printRow(w, colWidths, columns)
	PrintBorder(w, colWidths)
	for _, row := range cells {
		printRow(w, colWidths, row)
	}
	PrintBorder(w, colWidths)
	fmt.Fprintf(w, "(%d rows)\n", len(rows))
}

// PrintBorder writes a table border line.
func PrintBorder(w io.Writer, columnWidths []int) {
	var b strings.Builder
	b.WriteString("+")
	for _, width := range columnWidths {
		b.WriteString(strings.Repeat("-", width+2))
		b.WriteString("+")
	}
	fmt.Fprintln(w, b.String())
}

func printRow(w io.Writer, colWidths []int, values []string) {
	var b strings.Builder
	b.WriteString("|")
	for i, v := range values {
		fmt.Fprintf(&b, " %-*s |", colWidths[i], v)
	}
	fmt.Fprintln(w, b.String())
}

func formatCell(v interface{}) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}
