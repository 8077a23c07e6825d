package testutil

import "errors"

var errWrongArgs = errors.New("wrong number of arguments")
