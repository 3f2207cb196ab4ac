// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Package protocol provides validation utilities for MCP protocol.
package protocol

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Severity classifies a single validation finding.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// ValidationError is one finding from validating a frame or tool arguments
// against its schema.
type ValidationError struct {
	Path     string   `json:"path"`
	Message  string   `json:"message"`
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
}

// ValidationErrors is an ordered list of findings.
type ValidationErrors []ValidationError

// Blocking reports whether the list contains any Error or Critical finding.
// A frame or argument set with only Warning findings still proceeds.
func (v ValidationErrors) Blocking() bool {
	for _, e := range v {
		if e.Severity == SeverityError || e.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// ValidateToolArguments validates tool arguments against the tool's JSON
// Schema and returns the ordered list of findings. An empty schema always
// passes (no validation required).
func ValidateToolArguments(tool Tool, arguments map[string]interface{}) ValidationErrors {
	if len(tool.InputSchema) == 0 {
		return nil
	}

	schemaLoader := gojsonschema.NewGoLoader(tool.InputSchema)
	argsLoader := gojsonschema.NewGoLoader(arguments)

	result, err := gojsonschema.Validate(schemaLoader, argsLoader)
	if err != nil {
		return ValidationErrors{{
			Message:  fmt.Sprintf("schema validation failed: %v", err),
			Code:     "schema_error",
			Severity: SeverityCritical,
		}}
	}

	if result.Valid() {
		return nil
	}

	out := make(ValidationErrors, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		out = append(out, ValidationError{
			Path:     e.Field(),
			Message:  e.Description(),
			Code:     e.Type(),
			Severity: SeverityError,
		})
	}
	return out
}

// ValidateRequest validates a JSON-RPC request
func ValidateRequest(req *Request) error {
	if req.JSONRPC != JSONRPCVersion {
		return fmt.Errorf("invalid jsonrpc version: %s (expected %s)", req.JSONRPC, JSONRPCVersion)
	}

	if req.Method == "" {
		return fmt.Errorf("method is required")
	}

	return nil
}

// ValidateResponse validates a JSON-RPC response
func ValidateResponse(resp *Response) error {
	if resp.JSONRPC != JSONRPCVersion {
		return fmt.Errorf("invalid jsonrpc version: %s (expected %s)", resp.JSONRPC, JSONRPCVersion)
	}

	if resp.ID == nil {
		return fmt.Errorf("response ID is required")
	}

	// Exactly one of Result or Error must be present
	hasResult := len(resp.Result) > 0
	hasError := resp.Error != nil

	if hasResult == hasError {
		return fmt.Errorf("response must have exactly one of result or error")
	}

	return nil
}
