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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"sync"

	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/store"
	"github.com/samber/lo"
	"golang.org/x/exp/maps"
	"golang.org/x/text/cases"
)

// Logger receives warnings the manager cannot return to a caller.
type Logger interface {
	Println(a ...any) (int, error)
}

// Manager owns every region and the set of players bypassing protection. All methods
// are safe for concurrent use; mutations are persisted before the lock is released.
type Manager struct {
	lock    sync.RWMutex
	regions map[string]*Region
	bypass  map[string]struct{}
	file    *store.File
	log     Logger
}

// ErrEmptyDocument is reported when regions.json is changed to an empty file.
var ErrEmptyDocument = errors.New("regions.json is empty")

func NewManager(file *store.File, log Logger) *Manager {
	return &Manager{
		regions: make(map[string]*Region),
		bypass:  make(map[string]struct{}),
		file:    file,
		log:     log,
	}
}

func foldName(name string) string {
	return cases.Fold().String(name)
}

// Load replaces the in-memory state with the content of the store. The manager is left
// empty when the store is missing or unreadable; only the latter returns an error.
func (m *Manager) Load() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.regions = make(map[string]*Region)
	m.bypass = make(map[string]struct{})
	data, err := m.file.Read()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read regions: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	regions, bypass, err := m.decode(data)
	if err != nil {
		return err
	}
	m.regions, m.bypass = regions, bypass
	return nil
}

// decode builds a fresh state from data without touching the manager.
func (m *Manager) decode(data []byte) (map[string]*Region, map[string]struct{}, error) {
	if err := validateDocument(data); err != nil {
		m.warn("regions.json does not match the expected layout, loading what is usable:", err)
	}
	records, names, err := decodeDocument(data)
	if err != nil {
		return nil, nil, err
	}
	regions := make(map[string]*Region, len(records))
	for _, rec := range records {
		if rec.Name == "" {
			continue
		}
		regions[rec.Name] = rec.Region()
	}
	bypass := make(map[string]struct{}, len(names))
	for _, name := range names {
		bypass[foldName(name)] = struct{}{}
	}
	return regions, bypass, nil
}

func (m *Manager) warn(a ...any) {
	if m.log != nil {
		m.log.Println(a...)
	}
}

// Save writes the whole state to the store.
func (m *Manager) Save() error {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	doc := document{
		Regions: make([]Record, 0, len(m.regions)),
		Bypass:  sortedKeys(m.bypass),
	}
	if doc.Bypass == nil {
		doc.Bypass = []string{}
	}
	for _, name := range sortedKeys(m.regions) {
		doc.Regions = append(doc.Regions, m.regions[name].Record())
	}
	data, err := json.MarshalIndent(doc, "", "\t")
	if err != nil {
		return fmt.Errorf("encode regions: %w", err)
	}
	if err := m.file.Write(data); err != nil {
		return fmt.Errorf("save regions: %w", err)
	}
	return nil
}

// AddRegion stores a copy of r. It reports false, without touching the store, when a
// region with the same name already exists.
func (m *Manager) AddRegion(r *Region) (bool, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.regions[r.Name]; ok {
		return false, nil
	}
	m.regions[r.Name] = normalizedClone(r)
	return true, m.saveLocked()
}

// UpdateRegion stores a copy of r, replacing the region called oldName when the region
// was renamed. An empty oldName means r keeps its name.
func (m *Manager) UpdateRegion(r *Region, oldName string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if oldName != "" && oldName != r.Name {
		delete(m.regions, oldName)
	}
	m.regions[r.Name] = normalizedClone(r)
	return m.saveLocked()
}

func (m *Manager) RemoveRegion(name string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.regions, name)
	return m.saveLocked()
}

func normalizedClone(r *Region) *Region {
	c := r.Clone()
	c.Normalize()
	return c
}

// Regions returns copies of all regions ordered by name.
func (m *Manager) Regions() []*Region {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return lo.Map(sortedKeys(m.regions), func(name string, _ int) *Region {
		return m.regions[name].Clone()
	})
}

func (m *Manager) Region(name string) (*Region, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	r, ok := m.regions[name]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

func (m *Manager) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.regions)
}

// RegionsAt returns copies of the regions containing pos ordered by name.
func (m *Manager) RegionsAt(pos Position) []*Region {
	m.lock.RLock()
	defer m.lock.RUnlock()
	matched := lo.Map(m.matchLocked(pos), func(r *Region, _ int) *Region {
		return r.Clone()
	})
	slices.SortFunc(matched, func(a, b *Region) int {
		return strings.Compare(a.Name, b.Name)
	})
	return matched
}

func (m *Manager) matchLocked(pos Position) []*Region {
	cell := pos.Cell()
	return lo.Filter(lo.Values(m.regions), func(r *Region, _ int) bool {
		return r.Contains(pos.World, cell[0], cell[1], cell[2])
	})
}

// IsAllowedAt resolves flag at pos. Outside of every region everything is allowed.
// When priority regions contain pos only they are consulted, otherwise every containing
// region is; a single region denying the flag denies it. Bypass is not considered here.
func (m *Manager) IsAllowedAt(pos Position, flag Flag) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	matched := m.matchLocked(pos)
	if len(matched) == 0 {
		return true
	}
	effective := lo.Filter(matched, func(r *Region, _ int) bool {
		return r.Priority
	})
	if len(effective) == 0 {
		effective = matched
	}
	return lo.EveryBy(effective, func(r *Region) bool {
		return r.Allows(flag)
	})
}

// HasBypass reports whether actor ignores region protection. Names are compared without
// regard to case.
func (m *Manager) HasBypass(actor string) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	_, ok := m.bypass[foldName(actor)]
	return ok
}

// ToggleBypass flips the bypass of actor and returns the new state.
func (m *Manager) ToggleBypass(actor string) (bool, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	key := foldName(actor)
	_, on := m.bypass[key]
	if on {
		delete(m.bypass, key)
	} else {
		m.bypass[key] = struct{}{}
	}
	return !on, m.saveLocked()
}

// Bypassing lists the players currently bypassing protection.
func (m *Manager) Bypassing() []string {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return sortedKeys(m.bypass)
}

// Watch reloads the manager whenever the store is changed on disk by another process.
// Content that is empty or cannot be decoded is reported and the current state is kept.
// onReload, when not nil, is called after every reload attempt with its error.
func (m *Manager) Watch(ctx context.Context, onReload func(error)) error {
	return m.file.Watch(ctx, func(data []byte) error {
		err := m.reload(data)
		if onReload != nil {
			onReload(err)
		}
		return err
	})
}

func (m *Manager) reload(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return ErrEmptyDocument
	}
	regions, bypass, err := m.decode(data)
	if err != nil {
		return err
	}
	m.lock.Lock()
	m.regions, m.bypass = regions, bypass
	m.lock.Unlock()
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
