package application

import (
	"errors"

	"receipts-service/internal/domain"
)

var ErrNotFound = domain.ErrNotFound
var ErrBadRequest = errors.New("bad request")
