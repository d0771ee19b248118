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

package region

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Record is the persisted form of a region.
type Record struct {
	Name            string `json:"name"`
	World           string `json:"world"`
	Creator         string `json:"creator"`
	MinX            int    `json:"minX"`
	MinY            int    `json:"minY"`
	MinZ            int    `json:"minZ"`
	MaxX            int    `json:"maxX"`
	MaxY            int    `json:"maxY"`
	MaxZ            int    `json:"maxZ"`
	AllowFireDamage bool   `json:"allowFireDamage"`
	AllowEnderPearl bool   `json:"allowEnderPearl"`
	AllowPvp        bool   `json:"allowPvp"`
	AllowBreak      bool   `json:"allowBreak"`
	AllowPlace      bool   `json:"allowPlace"`
	Priority        bool   `json:"priority"`
}

func (r *Region) Record() Record {
	return Record{
		Name:            r.Name,
		World:           r.World,
		Creator:         r.Creator,
		MinX:            r.Min[0],
		MinY:            r.Min[1],
		MinZ:            r.Min[2],
		MaxX:            r.Max[0],
		MaxY:            r.Max[1],
		MaxZ:            r.Max[2],
		AllowFireDamage: r.FireDamage,
		AllowEnderPearl: r.EnderPearl,
		AllowPvp:        r.PvP,
		AllowBreak:      r.Break,
		AllowPlace:      r.Place,
		Priority:        r.Priority,
	}
}

// Region builds the normalized region described by the record.
func (rec Record) Region() *Region {
	return New(rec.Name, rec.World, rec.Creator,
		BlockPos{rec.MinX, rec.MinY, rec.MinZ},
		BlockPos{rec.MaxX, rec.MaxY, rec.MaxZ},
		Permissions{
			FireDamage: rec.AllowFireDamage,
			EnderPearl: rec.AllowEnderPearl,
			PvP:        rec.AllowPvp,
			Break:      rec.AllowBreak,
			Place:      rec.AllowPlace,
		},
		rec.Priority,
	)
}

// DecodeRecord reads a record field by field. Fields that are absent, null or of an
// unusable type take their default value instead of failing the record. It returns
// false only when raw is not a JSON object.
func DecodeRecord(raw json.RawMessage) (Record, bool) {
	var f fields
	if err := json.Unmarshal(raw, &f); err != nil || f == nil {
		return Record{}, false
	}
	return Record{
		Name:            f.string("name"),
		World:           f.string("world"),
		Creator:         f.string("creator"),
		MinX:            f.int("minX"),
		MinY:            f.int("minY"),
		MinZ:            f.int("minZ"),
		MaxX:            f.int("maxX"),
		MaxY:            f.int("maxY"),
		MaxZ:            f.int("maxZ"),
		AllowFireDamage: f.bool("allowFireDamage", false),
		AllowEnderPearl: f.bool("allowEnderPearl", true),
		AllowPvp:        f.bool("allowPvp", true),
		AllowBreak:      f.bool("allowBreak", false),
		AllowPlace:      f.bool("allowPlace", false),
		Priority:        f.bool("priority", false),
	}, true
}

type fields map[string]json.RawMessage

func (f fields) value(key string) any {
	raw, ok := f[key]
	if !ok {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

func (f fields) string(key string) string {
	switch v := f.value(key).(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

func (f fields) int(key string) int {
	switch v := f.value(key).(type) {
	case float64:
		return clampInt(v)
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return clampInt(n)
		}
	case bool:
		if v {
			return 1
		}
	}
	return 0
}

func clampInt(v float64) int {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt:
		return math.MaxInt
	case v <= math.MinInt:
		return math.MinInt
	}
	return int(v)
}

func (f fields) bool(key string, def bool) bool {
	switch v := f.value(key).(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

// document is the layout of regions.json.
type document struct {
	Regions []Record `json:"regions"`
	Bypass  []string `json:"bypass"`
}

// decodeDocument reads regions.json tolerantly. Only content that is not a JSON object
// at all is an error; anything below the top level degrades to defaults.
func decodeDocument(data []byte) (records []Record, bypass []string, err error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, nil, fmt.Errorf("decode regions: %w", err)
	}
	for _, raw := range rawList(top["regions"]) {
		if rec, ok := DecodeRecord(raw); ok {
			records = append(records, rec)
		}
	}
	for _, raw := range rawList(top["bypass"]) {
		var name string
		if json.Unmarshal(raw, &name) == nil && name != "" {
			bypass = append(bypass, name)
		}
	}
	return records, bypass, nil
}

// rawList accepts both a JSON array and an object used as a list, the latter ordered by
// key.
func rawList(raw json.RawMessage) []json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var list []json.RawMessage
	if json.Unmarshal(raw, &list) == nil {
		return list
	}
	var obj map[string]json.RawMessage
	if json.Unmarshal(raw, &obj) != nil {
		return nil
	}
	for _, key := range sortedKeys(obj) {
		list = append(list, obj[key])
	}
	return list
}
