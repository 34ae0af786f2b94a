package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"payment-service/internal/store"
)

// Amounts cross the driver as text so NUMERIC never passes through a float.

func numeric(d decimal.Decimal) string {
	return d.String()
}

func parseNumeric(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
