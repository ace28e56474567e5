// Sentinel errors used with errors.Is across the pipeline.
package domain

import "errors"

// ErrEmptyGeneration indicates the generative backend returned no
// usable text. The daily processor falls back to a deterministic
// summary instead of failing.
var ErrEmptyGeneration = errors.New("generation returned no usable text")
