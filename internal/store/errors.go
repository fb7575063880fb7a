package store

import (
	"github.com/xtxerr/trending/internal/errors"
)

var (
	ErrDatabase = errors.ErrDatabase
	ErrClosed   = errors.ErrClosed
)
