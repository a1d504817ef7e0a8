// SPDX-License-Identifier: MIT

package cv

import "errors"

// ErrConfiguration is returned for an unusable fold layout or input, e.g.
// fewer individuals than folds or rrBLUP without genotypes.
var ErrConfiguration = errors.New("cv: invalid configuration")
