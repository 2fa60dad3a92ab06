package data

import "errors"

var (
	ErrNotFound         = errors.New("order not found")
	ErrOrderNumberTaken = errors.New("order number already taken")
	ErrVersionConflict  = errors.New("order was modified concurrently")
)
