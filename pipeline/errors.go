package pipeline

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// sizeMismatch is the error of a rank whose slice does not
// have the length its plan calls for.
func sizeMismatch(rank, expected, actual int) error {
	return errors.E(errors.Integrity,
		fmt.Sprintf("rank %d expected %d elements but received %d", rank, expected, actual))
}

// firstError picks the error that explains a failed run.
//
// Ranks that fail because a peer aborted report an
// errors.Remote error, so the peer's own error is preferred.
func firstError(errs []error) error {
	var remote error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if !errors.Is(errors.Remote, err) {
			return err
		}
		if remote == nil {
			remote = err
		}
	}
	return remote
}
