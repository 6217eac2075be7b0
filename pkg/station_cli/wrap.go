// pkg/station_cli/wrap.go

package station_cli

import (
	"context"

	cerr "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tcs-recycling/wipestation/pkg/logger"
	"github.com/tcs-recycling/wipestation/pkg/station_io"
)

// Wrap adapts a RuntimeContext-based handler to a cobra RunE, adding panic
// recovery and end-of-command logging.
func Wrap(fn func(rc *station_io.RuntimeContext, cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		logger.L()

		rc := station_io.NewContext(context.Background(), cmd.Name())
		defer rc.End(&err)

		defer func() {
			if r := recover(); r != nil {
				err = cerr.AssertionFailedf("panic: %v", r)
				rc.Log.Error("Panic recovered", zap.Any("panic", r))
			}
		}()

		return fn(rc, cmd, args)
	}
}
