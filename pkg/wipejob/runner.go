// pkg/wipejob/runner.go

package wipejob

import (
	"context"

	"github.com/tcs-recycling/wipestation/pkg/execute"
)

// Runner launches one wipe helper invocation and streams its stderr lines.
// It blocks until the process exits and returns the exit error, if any.
// Abstracted so engine tests can substitute a scripted helper.
type Runner interface {
	Run(ctx context.Context, method Method, devicePath string, onLine func(string)) error
}

// helperRunner invokes the privileged helper through the pre-provisioned
// passwordless sudo rule. The argument shape is fixed: subcommand and
// whole-disk path, nothing else. The helper revalidates both independently.
type helperRunner struct {
	helperPath string
}

// NewHelperRunner builds the production runner for the helper at helperPath.
func NewHelperRunner(helperPath string) Runner {
	return &helperRunner{helperPath: helperPath}
}

func (r *helperRunner) Run(ctx context.Context, method Method, devicePath string, onLine func(string)) error {
	return execute.Stream(ctx, execute.Options{
		Command: "sudo",
		Args:    []string{"-n", r.helperPath, string(method), devicePath},
	}, onLine)
}
