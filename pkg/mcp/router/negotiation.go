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

package router

import "fmt"

// NegotiateVersion picks the protocol version both sides can speak. If the
// client's requested version is in supported, it wins outright (both
// sides already agree); otherwise the server falls back to its own
// latest, which the client may reject by closing the connection.
func NegotiateVersion(requested string, supported []string) (string, error) {
	if len(supported) == 0 {
		return "", fmt.Errorf("server has no supported protocol versions configured")
	}
	for _, v := range supported {
		if v == requested {
			return v, nil
		}
	}
	return supported[len(supported)-1], nil
}

// CapabilitySet is the minimal view negotiation needs from either side's
// declared capabilities: which top-level capability keys are present.
type CapabilitySet map[string]bool

// NegotiateCapabilities returns the server capabilities in effect for one
// connection: every capability the server enables, whatever the client
// declared, except roots, which is dropped unless the client also
// declared roots.
func NegotiateCapabilities(serverCaps, clientCaps CapabilitySet) CapabilitySet {
	effective := make(CapabilitySet, len(serverCaps))
	for k, v := range serverCaps {
		if !v {
			continue
		}
		// Capabilities are independent; the server advertises its own
		// regardless of what the client declares, with one exception:
		// roots/list_changed can only be used if the client actually
		// supports roots.
		if k == "roots" && !clientCaps["roots"] {
			continue
		}
		effective[k] = true
	}
	return effective
}
