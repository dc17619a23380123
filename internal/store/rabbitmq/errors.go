package rabbitmq

import "errors"

var ErrBadEvent = errors.New("rabbitmq: malformed status event")
