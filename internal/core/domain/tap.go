package domain

import "time"

// Tap records a single dispense charged to a card.
type Tap struct {
	ID          string    `json:"id" bson:"_id"`
	CardGUID    string    `json:"card_guid" bson:"card_guid"`
	DispenserID string    `json:"dispenser_id" bson:"dispenser_id"`
	VolumeML    int       `json:"volume_ml" bson:"volume_ml"`
	AmountCents int64     `json:"amount_cents" bson:"amount_cents"`
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`
}
