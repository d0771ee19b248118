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

// Package rank keeps named ranks and the rank held by every known player. A rank can be
// held for a limited time, after which the player falls back to the default rank.
package rank

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/store"
	"github.com/jonboulle/clockwork"
	"golang.org/x/exp/maps"
	"gopkg.in/yaml.v3"
)

const (
	DefaultRank   = "joueur"
	defaultRender = "§7[Joueur] {name}"
)

type Definition struct {
	Render      string   `yaml:"render"`
	Permissions []string `yaml:"permissions"`
}

// Assignment is the rank held by a player. Until is a unix time in seconds, zero for a
// permanent rank.
type Assignment struct {
	Rank  string `yaml:"rank"`
	Until int64  `yaml:"until"`
}

type ranksDocument struct {
	Default string                 `yaml:"default"`
	Ranks   map[string]*Definition `yaml:"ranks"`
}

type playersDocument struct {
	Players map[string]*Assignment `yaml:"players"`
}

type Manager struct {
	lock        sync.Mutex
	ranks       ranksDocument
	players     playersDocument
	ranksFile   *store.File
	playersFile *store.File
	clock       clockwork.Clock
}

// NewManager returns a manager persisting rank definitions to ranks and assignments to
// players. A nil clock means the wall clock.
func NewManager(ranks, players *store.File, clock clockwork.Clock) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	m := &Manager{ranksFile: ranks, playersFile: players, clock: clock}
	m.reset()
	return m
}

func (m *Manager) reset() {
	m.ranks = ranksDocument{
		Default: DefaultRank,
		Ranks: map[string]*Definition{
			DefaultRank: {Render: defaultRender, Permissions: []string{}},
		},
	}
	m.players = playersDocument{Players: make(map[string]*Assignment)}
}

// Load reads both stores. Missing stores are created with the default content.
func (m *Manager) Load() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.reset()
	if err := loadYAML(m.ranksFile, &m.ranks); err != nil {
		return err
	}
	if err := loadYAML(m.playersFile, &m.players); err != nil {
		return err
	}
	if m.ranks.Default == "" {
		m.ranks.Default = DefaultRank
	}
	if m.ranks.Ranks == nil {
		m.ranks.Ranks = make(map[string]*Definition)
	}
	if m.players.Players == nil {
		m.players.Players = make(map[string]*Assignment)
	}
	for name, def := range m.ranks.Ranks {
		if def == nil {
			m.ranks.Ranks[name] = &Definition{Render: "{name}"}
		}
	}
	for name, a := range m.players.Players {
		if a == nil {
			delete(m.players.Players, name)
		}
	}
	return m.saveLocked()
}

func loadYAML(file *store.File, v any) error {
	data, err := file.Read()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", file.Path(), err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", file.Path(), err)
	}
	return nil
}

func saveYAML(file *store.File, v any) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", file.Path(), err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode %s: %w", file.Path(), err)
	}
	return file.Write(buf.Bytes())
}

func (m *Manager) Save() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if err := saveYAML(m.ranksFile, &m.ranks); err != nil {
		return err
	}
	return saveYAML(m.playersFile, &m.players)
}

func (m *Manager) DefaultRank() string {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.ranks.Default
}

func (m *Manager) SetDefaultRank(rank string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.ranks.Default = rank
	return saveYAML(m.ranksFile, &m.ranks)
}

func (m *Manager) RankExists(rank string) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	_, ok := m.ranks.Ranks[rank]
	return ok
}

// CreateRank adds a rank without permissions rendered as "§7[Rank] {name}". It reports
// false when the rank exists.
func (m *Manager) CreateRank(rank string) (bool, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.ranks.Ranks[rank]; ok {
		return false, nil
	}
	m.ranks.Ranks[rank] = &Definition{
		Render:      "§7[" + upperFirst(rank) + "] {name}",
		Permissions: []string{},
	}
	return true, saveYAML(m.ranksFile, &m.ranks)
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// AddPermission grants perm to every holder of rank. Adding a permission twice is not an
// error. It reports false for unknown ranks.
func (m *Manager) AddPermission(rank, perm string) (bool, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	def, ok := m.ranks.Ranks[rank]
	if !ok {
		return false, nil
	}
	if slices.Contains(def.Permissions, perm) {
		return true, nil
	}
	def.Permissions = append(def.Permissions, perm)
	return true, saveYAML(m.ranksFile, &m.ranks)
}

// Render returns the name template of rank, "{name}" for unknown ranks.
func (m *Manager) Render(rank string) string {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.renderLocked(rank)
}

func (m *Manager) renderLocked(rank string) string {
	if def, ok := m.ranks.Ranks[rank]; ok {
		return def.Render
	}
	return "{name}"
}

func (m *Manager) SetRender(rank, render string) (bool, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	def, ok := m.ranks.Ranks[rank]
	if !ok {
		return false, nil
	}
	def.Render = render
	return true, saveYAML(m.ranksFile, &m.ranks)
}

// Ranks lists the rank names in order.
func (m *Manager) Ranks() []string {
	m.lock.Lock()
	defer m.lock.Unlock()
	return sortedKeys(m.ranks.Ranks)
}

func (m *Manager) Permissions(rank string) []string {
	m.lock.Lock()
	defer m.lock.Unlock()
	if def, ok := m.ranks.Ranks[rank]; ok {
		return slices.Clone(def.Permissions)
	}
	return nil
}

// SetPlayerRank gives rank to player for d, or for good when d is not positive. It
// reports false for unknown ranks.
func (m *Manager) SetPlayerRank(player, rank string, d time.Duration) (bool, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.ranks.Ranks[rank]; !ok {
		return false, nil
	}
	a := &Assignment{Rank: rank}
	if d > 0 {
		a.Until = m.clock.Now().Add(d).Unix()
	}
	m.players.Players[player] = a
	return true, saveYAML(m.playersFile, &m.players)
}

// RemovePlayerRank puts player back on the default rank for good.
func (m *Manager) RemovePlayerRank(player string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.players.Players[player] = &Assignment{Rank: m.ranks.Default}
	return saveYAML(m.playersFile, &m.players)
}

// EnsureDefault records the default rank for a player seen for the first time.
func (m *Manager) EnsureDefault(player string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.players.Players[player]; ok {
		return nil
	}
	m.players.Players[player] = &Assignment{Rank: m.ranks.Default}
	return saveYAML(m.playersFile, &m.players)
}

// Assignment returns the stored assignment of player without expiring it.
func (m *Manager) Assignment(player string) (Assignment, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	a, ok := m.players.Players[player]
	if !ok {
		return Assignment{}, false
	}
	return *a, true
}

// PlayerRank returns the rank of player. An expired rank is replaced by the default rank
// on the spot.
func (m *Manager) PlayerRank(player string) (string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	a, ok := m.players.Players[player]
	if !ok {
		return m.ranks.Default, nil
	}
	if m.expiredLocked(a) {
		m.players.Players[player] = &Assignment{Rank: m.ranks.Default}
		return m.ranks.Default, saveYAML(m.playersFile, &m.players)
	}
	if a.Rank == "" {
		return m.ranks.Default, nil
	}
	return a.Rank, nil
}

func (m *Manager) expiredLocked(a *Assignment) bool {
	return a.Until > 0 && a.Until <= m.clock.Now().Unix()
}

// Format renders the name of player holding rank.
func (m *Manager) Format(rank, player string) string {
	m.lock.Lock()
	defer m.lock.Unlock()
	return strings.NewReplacer("{name}", player, "{rank}", rank).Replace(m.renderLocked(rank))
}

// Expire resets every expired assignment and returns the affected players in order.
func (m *Manager) Expire() ([]string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	var expired []string
	for name, a := range m.players.Players {
		if m.expiredLocked(a) {
			m.players.Players[name] = &Assignment{Rank: m.ranks.Default}
			expired = append(expired, name)
		}
	}
	if len(expired) == 0 {
		return nil, nil
	}
	slices.Sort(expired)
	return expired, saveYAML(m.playersFile, &m.players)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
