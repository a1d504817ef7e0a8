// SPDX-License-Identifier: MIT

package linalg

import "errors"

// ErrUnsupportedBackend is returned by ByName for an unknown backend name.
var ErrUnsupportedBackend = errors.New("linalg: unsupported backend")
