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

// Package region implements named protection boxes and the flag resolution over them.
package region

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// BlockPos is an integer block coordinate.
type BlockPos [3]int

func (p BlockPos) X() int { return p[0] }
func (p BlockPos) Y() int { return p[1] }
func (p BlockPos) Z() int { return p[2] }

func (p BlockPos) String() string {
	return fmt.Sprintf("%d,%d,%d", p[0], p[1], p[2])
}

// Position is a continuous location inside a world.
type Position struct {
	World string
	Pos   mgl64.Vec3
}

// Cell returns the block containing the position.
func (p Position) Cell() BlockPos {
	return BlockPos{
		int(math.Floor(p.Pos[0])),
		int(math.Floor(p.Pos[1])),
		int(math.Floor(p.Pos[2])),
	}
}

// Permissions holds what is permitted inside a region.
type Permissions struct {
	FireDamage bool
	EnderPearl bool
	PvP        bool
	Break      bool
	Place      bool
}

// DefaultPermissions is the land claim default: pearls and PvP stay possible, the
// world itself is protected.
func DefaultPermissions() Permissions {
	return Permissions{EnderPearl: true, PvP: true}
}

// Region is an axis aligned box inside a single world. Min is never greater than Max
// on any axis once the region went through New or Normalize.
type Region struct {
	Name    string
	World   string
	Creator string
	Min     BlockPos
	Max     BlockPos
	Permissions
	Priority bool
}

// New creates a region spanning the corners a and b in any order.
func New(name, world, creator string, a, b BlockPos, perms Permissions, priority bool) *Region {
	r := &Region{
		Name:        name,
		World:       world,
		Creator:     creator,
		Min:         a,
		Max:         b,
		Permissions: perms,
		Priority:    priority,
	}
	r.Normalize()
	return r
}

// Normalize swaps the bounds of every axis where min is greater than max.
func (r *Region) Normalize() {
	for i := range 3 {
		if r.Min[i] > r.Max[i] {
			r.Min[i], r.Max[i] = r.Max[i], r.Min[i]
		}
	}
}

// Contains reports whether the block x, y, z of world lies inside the region. Both
// bounds are inclusive.
func (r *Region) Contains(world string, x, y, z int) bool {
	if world != r.World {
		return false
	}
	return x >= r.Min[0] && x <= r.Max[0] &&
		y >= r.Min[1] && y <= r.Max[1] &&
		z >= r.Min[2] && z <= r.Max[2]
}

// ContainsPosition is Contains for a continuous position.
func (r *Region) ContainsPosition(pos Position) bool {
	cell := pos.Cell()
	return r.Contains(pos.World, cell[0], cell[1], cell[2])
}

// Allows returns the permission stored for flag. Flags the region does not know about
// are allowed.
func (r *Region) Allows(flag Flag) bool {
	switch flag {
	case FlagFire:
		return r.FireDamage
	case FlagPearl:
		return r.EnderPearl
	case FlagPvP:
		return r.PvP
	case FlagBreak:
		return r.Break
	case FlagPlace:
		return r.Place
	}
	return true
}

// Set changes the permission stored for flag. It reports false for unknown flags.
func (r *Region) Set(flag Flag, allowed bool) bool {
	switch flag {
	case FlagFire:
		r.FireDamage = allowed
	case FlagPearl:
		r.EnderPearl = allowed
	case FlagPvP:
		r.PvP = allowed
	case FlagBreak:
		r.Break = allowed
	case FlagPlace:
		r.Place = allowed
	default:
		return false
	}
	return true
}

// Volume returns the number of blocks covered by the region.
func (r *Region) Volume() int64 {
	v := int64(1)
	for i := range 3 {
		v *= int64(r.Max[i]-r.Min[i]) + 1
	}
	return v
}

func (r *Region) Clone() *Region {
	c := *r
	return &c
}

func (r *Region) String() string {
	return fmt.Sprintf("%s (by %s) world=%s [%s] -> [%s], fire=%s, pearl=%s, pvp=%s, break=%s, place=%s, priority=%s",
		r.Name, r.Creator, r.World, r.Min, r.Max,
		onOff(r.FireDamage), onOff(r.EnderPearl), onOff(r.PvP), onOff(r.Break), onOff(r.Place), yesNo(r.Priority))
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
