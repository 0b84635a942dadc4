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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryResolvesCaseInsensitively(t *testing.T) {
	r := NewRegistry(map[string]string{
		"aa:bb:cc:dd:ee:01": "livingroom",
		"AA:BB:CC:DD:EE:02": "cellar",
	})
	require.Equal(t, 2, r.Size())

	name, ok := r.Resolve("AA:BB:CC:DD:EE:01")
	assert.True(t, ok)
	assert.Equal(t, "livingroom", name)

	name, ok = r.Resolve("aa:bb:cc:dd:ee:02")
	assert.True(t, ok)
	assert.Equal(t, "cellar", name)
}

func TestRegistryRejectsUnknownDevice(t *testing.T) {
	r := NewRegistry(map[string]string{"AA:BB:CC:DD:EE:01": "livingroom"})
	_, ok := r.Resolve("FF:FF:FF:FF:FF:FF")
	assert.False(t, ok)
}

func TestEmptyRegistry(t *testing.T) {
	r := NewRegistry(nil)
	assert.Equal(t, 0, r.Size())
	_, ok := r.Resolve("AA:BB:CC:DD:EE:01")
	assert.False(t, ok)
}
