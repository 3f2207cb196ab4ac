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

package protocol

import (
	"encoding/json"
	"sync"
)

// FrameKind classifies a decoded JSON-RPC frame.
type FrameKind int

const (
	// FrameMalformed marks a frame that could not be decoded or that
	// fails structural validation (see ValidateRequest/ValidateResponse).
	FrameMalformed FrameKind = iota
	FrameRequest
	FrameResponse
	FrameNotification
)

// Frame is the discriminated union the codec decodes every inbound line
// or body into. At most one of Request/Response is populated, matching
// the FrameKind; a FrameMalformed frame carries only Err.
type Frame struct {
	Kind     FrameKind
	Request  *Request // populated for FrameRequest and FrameNotification
	Response *Response
	Err      *Error // populated for FrameMalformed
}

// Decode parses raw bytes into a classified Frame. It never returns a Go
// error: malformed input is represented as FrameMalformed with Err set to
// the JSON-RPC error the caller should send back (or drop, for
// notification-shaped malformed input).
func Decode(data []byte) Frame {
	// A frame is a request/notification if it has "method"; otherwise it's
	// a response. Peek at both shapes since method and result/error are
	// mutually exclusive per the spec.
	var probe struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Method  *string         `json:"method"`
		Result  json.RawMessage `json:"result"`
		Error   *Error          `json:"error"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return Frame{Kind: FrameMalformed, Err: NewCanonicalError(ParseError, nil)}
	}

	if probe.Method != nil {
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			return Frame{Kind: FrameMalformed, Err: NewCanonicalError(ParseError, nil)}
		}
		if err := ValidateRequest(&req); err != nil {
			return Frame{Kind: FrameMalformed, Err: NewError(InvalidRequest, err.Error(), nil)}
		}
		req.Method = internMethod(req.Method)
		if req.ID == nil {
			return Frame{Kind: FrameNotification, Request: &req}
		}
		return Frame{Kind: FrameRequest, Request: &req}
	}

	// No method: must be a response shape.
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Frame{Kind: FrameMalformed, Err: NewCanonicalError(ParseError, nil)}
	}
	if resp.JSONRPC != JSONRPCVersion {
		return Frame{Kind: FrameMalformed, Err: NewError(InvalidRequest, "invalid jsonrpc version", nil)}
	}
	hasResult := len(resp.Result) > 0
	hasError := resp.Error != nil
	if resp.ID == nil || hasResult == hasError {
		return Frame{Kind: FrameMalformed, Err: NewError(InvalidRequest, "response must have an id and exactly one of result or error", nil)}
	}
	return Frame{Kind: FrameResponse, Response: &resp}
}

// EncodeRequest marshals a Request (or a notification, a Request with no
// id) back to bytes.
func EncodeRequest(r *Request) ([]byte, error) {
	return json.Marshal(r)
}

// EncodeResponse marshals a Response to bytes.
func EncodeResponse(r *Response) ([]byte, error) {
	return json.Marshal(r)
}

// methodInterner caches method name strings so repeated dispatch on the
// hot path (tools/call, resources/read, ...) compares/maps on a single
// shared string value rather than allocating a fresh one per frame.
var methodInterner = struct {
	mu    sync.Mutex
	known map[string]string
}{known: make(map[string]string)}

func internMethod(m string) string {
	methodInterner.mu.Lock()
	defer methodInterner.mu.Unlock()
	if v, ok := methodInterner.known[m]; ok {
		return v
	}
	methodInterner.known[m] = m
	return m
}
