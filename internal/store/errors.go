package store

import "errors"

var ErrDuplicateKey = errors.New("already exists")
