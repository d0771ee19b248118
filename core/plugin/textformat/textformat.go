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

// Package textformat builds Bedrock chat text out of colored parts.
package textformat

import (
	"encoding/json"
	"regexp"
	"strings"
)

type Color string

var (
	Black        Color = "§0"
	Dark_Blue    Color = "§1"
	Dark_Green   Color = "§2"
	Dark_Aqua    Color = "§3"
	Dark_Red     Color = "§4"
	Dark_Purple  Color = "§5"
	Gold         Color = "§6"
	Gray         Color = "§7"
	Dark_Gray    Color = "§8"
	Blue         Color = "§9"
	Green        Color = "§a"
	Aqua         Color = "§b"
	Red          Color = "§c"
	Light_Purple Color = "§d"
	Yellow       Color = "§e"
	White        Color = "§f"
)

const (
	bold   = "§l"
	italic = "§o"
	reset  = "§r"
)

type Message struct {
	Text   string
	Color  Color
	Bold   bool
	Italic bool
}

// Build renders the parts into one formatted line. Every part starts from a reset so
// styles never leak into the next part.
func Build(msg ...Message) string {
	var b strings.Builder
	for _, m := range msg {
		if m.Color == "" && !m.Bold && !m.Italic {
			b.WriteString(m.Text)
			continue
		}
		b.WriteString(string(m.Color))
		if m.Bold {
			b.WriteString(bold)
		}
		if m.Italic {
			b.WriteString(italic)
		}
		b.WriteString(m.Text)
		b.WriteString(reset)
	}
	return b.String()
}

var formatCode = regexp.MustCompile(`§[0-9a-zA-Z]?`)

// Strip removes every formatting code from s.
func Strip(s string) string {
	return formatCode.ReplaceAllString(s, "")
}

type rawText struct {
	RawText []rawTextPart `json:"rawtext"`
}

type rawTextPart struct {
	Text string `json:"text"`
}

// RawText encodes s as the rawtext JSON taken by tellraw.
func RawText(s string) string {
	data, _ := json.Marshal(rawText{RawText: []rawTextPart{{Text: s}}})
	return string(data)
}
