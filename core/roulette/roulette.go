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

// Package roulette implements the rules of the diamond roulette and keeps track of the
// tables placed in the worlds.
package roulette

import (
	"errors"
	"math/rand/v2"
	"sync"
)

const (
	MinNumber = 1
	MaxNumber = 30
)

type Color string

const (
	Red   Color = "red"
	Black Color = "black"
)

// ColorOf returns the color of a number: odd numbers are red, even ones black.
func ColorOf(n int) Color {
	if n%2 != 0 {
		return Red
	}
	return Black
}

// Stakes are the amounts a player can bet.
var Stakes = []int{1, 5, 10}

var (
	ErrInvalidNumber = errors.New("number must be between 1 and 30")
	ErrInvalidStake  = errors.New("stake must be 1, 5 or 10")
)

type Bet struct {
	Number int   `json:"number"`
	Color  Color `json:"color"`
	Stake  int   `json:"stake"`
}

// NewBet returns a bet on number, which also backs the color of number.
func NewBet(number, stake int) (Bet, error) {
	if number < MinNumber || number > MaxNumber {
		return Bet{}, ErrInvalidNumber
	}
	valid := false
	for _, s := range Stakes {
		valid = valid || s == stake
	}
	if !valid {
		return Bet{}, ErrInvalidStake
	}
	return Bet{Number: number, Color: ColorOf(number), Stake: stake}, nil
}

type Outcome int

const (
	Lost Outcome = iota
	ColorWon
	Jackpot
)

func (o Outcome) String() string {
	switch o {
	case ColorWon:
		return "color"
	case Jackpot:
		return "jackpot"
	}
	return "lost"
}

type Result struct {
	Winning int
	Color   Color
	Outcome Outcome
	Payout  int
}

// Resolve settles bet against the winning number. The exact number pays three times the
// stake, the right color twice the stake.
func Resolve(bet Bet, winning int) Result {
	res := Result{Winning: winning, Color: ColorOf(winning)}
	switch {
	case bet.Number == winning:
		res.Outcome = Jackpot
		res.Payout = bet.Stake * 3
	case bet.Color == res.Color:
		res.Outcome = ColorWon
		res.Payout = bet.Stake * 2
	}
	return res
}

// Wheel draws winning numbers uniformly.
type Wheel struct {
	lock sync.Mutex
	rng  *rand.Rand
}

// NewWheel returns a wheel drawing from src, or from the runtime generator when src is
// nil.
func NewWheel(src rand.Source) *Wheel {
	w := &Wheel{}
	if src != nil {
		w.rng = rand.New(src)
	}
	return w
}

func (w *Wheel) Spin() int {
	if w.rng == nil {
		return MinNumber + rand.IntN(MaxNumber-MinNumber+1)
	}
	w.lock.Lock()
	defer w.lock.Unlock()
	return MinNumber + w.rng.IntN(MaxNumber-MinNumber+1)
}
