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

// Package codec encodes operator snapshots as msgpack.
package codec

import (
	"bytes"
	"fmt"

	"github.com/hashicorp/go-msgpack/v2/codec"
)

// Encode serializes in as msgpack.
func Encode(in interface{}) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	hd := codec.MsgpackHandle{}
	if err := codec.NewEncoder(buf, &hd).Encode(in); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reverses Encode into out, which must be a pointer.
func Decode(data []byte, out interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("decode snapshot: empty blob")
	}
	hd := codec.MsgpackHandle{}
	if err := codec.NewDecoder(bytes.NewReader(data), &hd).Decode(out); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	return nil
}
