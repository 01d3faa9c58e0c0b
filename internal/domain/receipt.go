package domain

import "time"

type ReceiptStatus string

const (
	ReceiptStatusDraft ReceiptStatus = "Draft"
)

type Receipt struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Amount    float64       `json:"amount"`
	Currency  string        `json:"currency"`
	Status    ReceiptStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}
