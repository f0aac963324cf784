package main

import (
	"errors"
)

var (
	errInvalidAddress      = errors.New("invalid address")
	errNoActiveWork        = errors.New("waiting for next block template")
	errBlockRejected       = errors.New("block rejected")
	errUpstreamUnavailable = errors.New("node unavailable")
	errMalformedTemplate   = errors.New("malformed block template")
	errMethodNotFound      = errors.New("method not found")
	errInvalidParams       = errors.New("invalid params")
	errUnauthorized        = errors.New("unauthorized worker")
)

const (
	stratumErrCodeDomain         = 1
	stratumErrCodeUnauthorized   = 24
	stratumErrCodeMethodNotFound = -32601
	stratumErrCodeInvalidParams  = -32602
	stratumErrCodeInternal       = -32603
)

// stratumErrorFor maps a handler error to the [code, message, null] triple
// miners expect. Domain failures keep their wrapped detail in the message.
func stratumErrorFor(err error) []any {
	if err == nil {
		return nil
	}
	code := stratumErrCodeInternal
	switch {
	case errors.Is(err, errInvalidAddress),
		errors.Is(err, errNoActiveWork),
		errors.Is(err, errBlockRejected):
		code = stratumErrCodeDomain
	case errors.Is(err, errUnauthorized):
		code = stratumErrCodeUnauthorized
	case errors.Is(err, errMethodNotFound):
		code = stratumErrCodeMethodNotFound
	case errors.Is(err, errInvalidParams):
		code = stratumErrCodeInvalidParams
	}
	return newStratumError(code, err.Error())
}

func newStratumError(code int, msg string) []any {
	return []any{code, msg, nil}
}
