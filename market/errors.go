package market

import "errors"

var (
	ErrInvalidCapacity = errors.New("window capacity must be a positive integer")
	ErrOutOfOrderTick  = errors.New("tick older than last entered tick")
	ErrInvalidPrice    = errors.New("tick price must be positive and finite")
	ErrShortSeed       = errors.New("seed needs at least two points")
	ErrInvalidBucket   = errors.New("seed spacing must be positive")
	ErrUnknownIndex    = errors.New("index has not been seeded")
)
