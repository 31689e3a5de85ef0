package domain

import "time"

// CardStatus is the usability state of a prepaid card.
type CardStatus string

const (
	CardActive  CardStatus = "active"
	CardBlocked CardStatus = "blocked"
)

// Card is a prepaid NFC card. GUID is the identifier decoded from the tag.
type Card struct {
	GUID         string     `json:"guid" bson:"_id"`
	OwnerID      string     `json:"owner_id" bson:"owner_id"`
	BalanceCents int64      `json:"balance_cents" bson:"balance_cents"`
	Status       CardStatus `json:"status" bson:"status"`
	CreatedAt    time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" bson:"updated_at"`
}

// Usable reports whether the card may be debited.
func (c *Card) Usable() bool { return c.Status == CardActive }
