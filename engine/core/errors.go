package core

import (
	"errors"
)

var (
	ErrStaleHandle   = errors.New("stale resource handle")
	ErrPoolExhausted = errors.New("descriptor pool exhausted beyond capacity")
	ErrPoolFull      = errors.New("descriptor pool out of memory")
	ErrFenceTimeout  = errors.New("fence wait timed out")
	ErrDeviceLost    = errors.New("device lost")
	ErrInvalidPass   = errors.New("invalid pass declaration")
)
