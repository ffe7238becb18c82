// Package model defines the core domain types shared across the market engine.
// Balances and prices are whole coins (int64); IV percentages use
// shopspring/decimal so display rounding is exact.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxIV is the highest value a single individual value can take.
const MaxIV = 31

// MaxIVTotal is the sum of all six IVs at their maximum.
const MaxIVTotal = 6 * MaxIV

// IVs holds the six per-stat individual values of a creature.
type IVs struct {
	HP    int `json:"hp"`
	Atk   int `json:"atk"`
	Def   int `json:"def"`
	SpAtk int `json:"satk"`
	SpDef int `json:"sdef"`
	Spd   int `json:"spd"`
}

// Total returns the sum of the six IVs.
func (v IVs) Total() int {
	return v.HP + v.Atk + v.Def + v.SpAtk + v.SpDef + v.Spd
}

// Creature is a snapshot of one owned creature. Once embedded in a listing
// it is never modified; it belongs either to a member's collection or to a
// listing, never both.
type Creature struct {
	ID        string `json:"id"`
	SpeciesID int    `json:"species_id"`
	Level     int    `json:"level"`
	XP        int    `json:"xp"`
	Nature    string `json:"nature"`
	Shiny     bool   `json:"shiny"`
	Nickname  string `json:"nickname,omitempty"`
	HeldItem  int    `json:"held_item,omitempty"`
	IVs       IVs    `json:"ivs"`
}

// IVTotal returns the sum of the creature's IVs.
func (c Creature) IVTotal() int {
	return c.IVs.Total()
}

// IVPercentage returns IVTotal/MaxIVTotal as a fraction in [0, 1].
func (c Creature) IVPercentage() decimal.Decimal {
	return decimal.NewFromInt(int64(c.IVTotal())).
		DivRound(decimal.NewFromInt(MaxIVTotal), 6)
}

// MaxXP is the experience needed to reach the next level.
func (c Creature) MaxXP() int {
	return 250 + 25*c.Level
}

// Listing is a creature held by the marketplace at a fixed price.
// Created by a list operation; destroyed by a withdraw or purchase.
type Listing struct {
	ID        string    `json:"id" db:"id"`
	SellerID  string    `json:"seller_id" db:"seller_id"`
	Price     int64     `json:"price" db:"price"`
	Creature  Creature  `json:"creature" db:"creature"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Member is a player's profile as seen by the marketplace: a coin balance,
// an ordered creature collection and the index of the selected creature.
type Member struct {
	ID        string     `json:"id" db:"id"`
	Balance   int64      `json:"balance" db:"balance"`
	Selected  int        `json:"selected" db:"selected"`
	Creatures []Creature `json:"creatures" db:"creatures"`
}
