package command

import (
	"errors"
	"fmt"
	"os/exec"
)

// FromError expands a subprocess failure into a message that includes
// the captured stderr, since the default *exec.ExitError.Error() only
// reports the exit status.
func FromError(err error) string {
	var ee *exec.ExitError
	if errors.As(err, &ee) && len(ee.Stderr) > 0 {
		return fmt.Sprintf("%s: %s", err.Error(), ee.Stderr)
	}
	return err.Error()
}
