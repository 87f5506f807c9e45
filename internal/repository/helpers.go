package repository

import (
	"database/sql"
	"errors"
)

// HandleNotFound turns sql.ErrNoRows from a single-row lookup into (nil, nil).
func HandleNotFound[T any](result *T, err error) (*T, error) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, err
	default:
		return result, nil
	}
}
