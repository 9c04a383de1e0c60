// Copyright 2026 The Botvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package botvisor

import (
	"sort"
	"strconv"
	"strings"
)

// Names of the variables every bot receives on top of the supervisor's
// own environment.
const (
	EnvPort        = "PORT"
	EnvStorageURI  = "MONGO_URI"
	EnvMode        = "NODE_ENV"
	ModeProduction = "production"
)

// MergeEnv returns base with every key in over set, replacing any
// existing definition.  Added keys are appended in sorted order.
func MergeEnv(base []string, over map[string]string) []string {
	rv := make([]string, 0, len(base)+len(over))
	for _, kv := range base {
		k := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			k = kv[:i]
		}
		if _, ok := over[k]; ok {
			continue
		}
		rv = append(rv, kv)
	}
	keys := make([]string, 0, len(over))
	for k := range over {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rv = append(rv, k+"="+over[k])
	}
	return rv
}

// botEnv is the environment for one run of b.
func botEnv(base []string, b *Bot, storageURI string) []string {
	return MergeEnv(base, map[string]string{
		EnvPort:       strconv.Itoa(b.Port),
		EnvStorageURI: storageURI,
		EnvMode:       ModeProduction,
	})
}
