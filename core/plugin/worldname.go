// Copyright 2024 bbaa
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

package plugin

import "strings"

var worldName = map[string]string{
	"overworld": "主世界",
	"nether":    "地狱",
	"the_end":   "末地",
	"Overall":   "服务器",
}

var dimensionAlias = map[string]string{
	"overworld":  "overworld",
	"world":      "overworld",
	"nether":     "nether",
	"the_nether": "nether",
	"end":        "the_end",
	"the_end":    "the_end",
}

// Dimension returns the dimension id the console understands for world, or "" when the
// world is not one of the vanilla dimensions.
func Dimension(world string) string {
	return dimensionAlias[strings.TrimPrefix(strings.ToLower(world), "minecraft:")]
}

// GetWorldName returns the display name of world.
func GetWorldName(world string) string {
	if name, ok := worldName[world]; ok {
		return name
	}
	if name, ok := worldName[Dimension(world)]; ok {
		return name
	}
	return world
}
