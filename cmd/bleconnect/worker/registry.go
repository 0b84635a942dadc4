// Copyright 2023 UMH Systems GmbH
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

package worker

import "strings"

// Registry is the static set of devices the service tracks. Addresses
// compare case-insensitively. The registry never changes at runtime;
// adding a device means changing the configuration and restarting.
type Registry struct {
	devices map[string]string
}

// NewRegistry builds a registry from address to display name pairs.
func NewRegistry(devices map[string]string) *Registry {
	normalized := make(map[string]string, len(devices))
	for address, name := range devices {
		normalized[strings.ToUpper(address)] = name
	}
	return &Registry{devices: normalized}
}

// Resolve returns the display name for address and whether the device
// is tracked at all.
func (r *Registry) Resolve(address string) (string, bool) {
	name, ok := r.devices[strings.ToUpper(address)]
	return name, ok
}

// Size returns the number of tracked devices.
func (r *Registry) Size() int {
	return len(r.devices)
}
