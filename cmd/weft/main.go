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

// weft is an MCP (Model Context Protocol) server runtime. It exposes
// tools, resources, and prompts to MCP clients over stdio, HTTP, or a
// full-duplex socket transport.
//
// Usage:
//
//	weft serve --transport stdio
//	weft serve --transport http --listen 127.0.0.1:7334
//	weft serve --transport socket --listen 127.0.0.1:7335 --multiplex
package main

func main() {
	Execute()
}
