// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

package mixtraffic

import (
	"errors"
	"fmt"
)

// ErrGatewayUnreachable is matched by every *GatewayUnreachableError.
var ErrGatewayUnreachable = errors.New("mixtraffic: gateway is unreachable")

// GatewayUnreachableError is the error returned by Controller.Run once the
// consecutive send failure threshold is reached.
type GatewayUnreachableError struct {
	// Failures is the number of consecutive failed sends.
	Failures int

	// Err is the last send error.
	Err error
}

// Error implements the error interface.
func (e *GatewayUnreachableError) Error() string {
	return fmt.Sprintf("mixtraffic: failed to send sphinx packet(s) to the gateway %d times in a row, assuming it is dead: %v", e.Failures, e.Err)
}

// Is reports whether target is ErrGatewayUnreachable.
func (e *GatewayUnreachableError) Is(target error) bool {
	return target == ErrGatewayUnreachable
}

// Unwrap returns the last send error.
func (e *GatewayUnreachableError) Unwrap() error {
	return e.Err
}
