// Copyright 2025 The GameManager Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package toolset

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"
)

// GenerateSchema reflects a JSON schema for T's struct tags, the way
// pkg/tool/functiontool.generateSchema derives a tool's input shape from its
// Go params type instead of hand-writing JSON schema literals.
func GenerateSchema[T any]() map[string]any {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(T))

	b, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	delete(m, "$schema")
	delete(m, "$id")
	return m
}

// DecodeArgs validates-by-decoding raw tools/call arguments into T: it
// unmarshals the JSON into a generic map first so callers get a validation
// error distinct from a decode panic, then uses mapstructure (as
// pkg/tool/mcptoolset's argument plumbing does) to populate T with strict
// field matching.
func DecodeArgs[T any](raw []byte) (T, error) {
	var zero T
	if len(raw) == 0 {
		return zero, nil
	}

	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return zero, fmt.Errorf("arguments must be a JSON object: %w", err)
	}

	var out T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return zero, fmt.Errorf("build decoder: %w", err)
	}
	if err := decoder.Decode(generic); err != nil {
		return zero, fmt.Errorf("invalid arguments: %w", err)
	}
	return out, nil
}
