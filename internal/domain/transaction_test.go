package domain

import (
	"testing"
	"time"
)

func TestTransaction_BundleEntry(t *testing.T) {
	tx := Transaction{
		Date:        time.Date(2024, 1, 5, 15, 4, 0, 0, time.UTC),
		Description: "TESCO STORES",
		Amount:      -23.4,
		Currency:    "GBP",
		Category:    "Groceries",
	}

	entry := tx.BundleEntry()

	if entry["date"] != "2024-01-05" {
		t.Errorf("date = %v, want 2024-01-05", entry["date"])
	}
	if entry["amount"] != -23.4 {
		t.Errorf("amount = %v, want -23.4", entry["amount"])
	}
	if entry["category"] != "Groceries" {
		t.Errorf("category = %v, want Groceries", entry["category"])
	}
	if _, ok := entry["subcategory"]; ok {
		t.Error("empty subcategory should be omitted")
	}
}
