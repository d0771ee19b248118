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

package roulette

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strconv"
	"sync"
	"time"

	"git.bbaa.fun/bbaa/minecraft-guard-daemon/core/store"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/exp/maps"
)

var (
	ErrNoTable = errors.New("no roulette table here")
	ErrBusy    = errors.New("roulette table is in use")
)

// Table is a roulette block placed in a world.
type Table struct {
	World   string `json:"world"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Z       int    `json:"z"`
	Creator string `json:"creator"`
}

// Key identifies the table by its block.
func (t Table) Key() string {
	return Key(t.World, t.X, t.Y, t.Z)
}

func Key(world string, x, y, z int) string {
	return world + ":" + strconv.Itoa(x) + ":" + strconv.Itoa(y) + ":" + strconv.Itoa(z)
}

// Session is a spin in progress.
type Session struct {
	ID      uuid.UUID
	Player  string
	Table   Table
	Bet     Bet
	Started time.Time
}

type tablesDocument struct {
	Tables []Table `json:"tables"`
}

// Tables is the registry of placed tables. A table runs at most one session at a time.
type Tables struct {
	lock     sync.Mutex
	tables   map[string]Table
	sessions map[string]*Session
	file     *store.File
}

func NewTables(file *store.File) *Tables {
	return &Tables{
		tables:   make(map[string]Table),
		sessions: make(map[string]*Session),
		file:     file,
	}
}

func (t *Tables) Load() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.tables = make(map[string]Table)
	data, err := t.file.Read()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read tables: %w", err)
	}
	var doc tablesDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode tables: %w", err)
	}
	for _, table := range doc.Tables {
		t.tables[table.Key()] = table
	}
	return nil
}

func (t *Tables) Save() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.saveLocked()
}

func (t *Tables) saveLocked() error {
	doc := tablesDocument{Tables: lo.Map(sortedKeys(t.tables), func(key string, _ int) Table {
		return t.tables[key]
	})}
	data, err := json.MarshalIndent(doc, "", "\t")
	if err != nil {
		return fmt.Errorf("encode tables: %w", err)
	}
	return t.file.Write(data)
}

// Add registers table. It reports false when a table already stands on the block.
func (t *Tables) Add(table Table) (bool, error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if _, ok := t.tables[table.Key()]; ok {
		return false, nil
	}
	t.tables[table.Key()] = table
	return true, t.saveLocked()
}

// Remove unregisters the table at key. Tables with a spin in progress cannot be removed.
func (t *Tables) Remove(key string) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if _, ok := t.tables[key]; !ok {
		return ErrNoTable
	}
	if _, busy := t.sessions[key]; busy {
		return ErrBusy
	}
	delete(t.tables, key)
	return t.saveLocked()
}

func (t *Tables) Table(key string) (Table, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	table, ok := t.tables[key]
	return table, ok
}

func (t *Tables) List() []Table {
	t.lock.Lock()
	defer t.lock.Unlock()
	return lo.Map(sortedKeys(t.tables), func(key string, _ int) Table {
		return t.tables[key]
	})
}

func (t *Tables) Len() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return len(t.tables)
}

func (t *Tables) Busy(key string) bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	_, busy := t.sessions[key]
	return busy
}

// Begin opens a session for player on the table at key.
func (t *Tables) Begin(key, player string, bet Bet, now time.Time) (Session, error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	table, ok := t.tables[key]
	if !ok {
		return Session{}, ErrNoTable
	}
	if _, busy := t.sessions[key]; busy {
		return Session{}, ErrBusy
	}
	s := &Session{
		ID:      uuid.New(),
		Player:  player,
		Table:   table,
		Bet:     bet,
		Started: now,
	}
	t.sessions[key] = s
	return *s, nil
}

// Finish closes the session id on the table at key. It reports false when that session
// is not the one running.
func (t *Tables) Finish(key string, id uuid.UUID) (Session, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	s, ok := t.sessions[key]
	if !ok || s.ID != id {
		return Session{}, false
	}
	delete(t.sessions, key)
	return *s, true
}

// Sessions returns the spins in progress.
func (t *Tables) Sessions() []Session {
	t.lock.Lock()
	defer t.lock.Unlock()
	return lo.Map(lo.Values(t.sessions), func(s *Session, _ int) Session {
		return *s
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
