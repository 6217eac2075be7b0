// cmd/serve/serve.go

package serve

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tcs-recycling/wipestation/pkg/audit"
	"github.com/tcs-recycling/wipestation/pkg/devices"
	"github.com/tcs-recycling/wipestation/pkg/guardrail"
	"github.com/tcs-recycling/wipestation/pkg/server"
	"github.com/tcs-recycling/wipestation/pkg/station_cli"
	"github.com/tcs-recycling/wipestation/pkg/station_config"
	"github.com/tcs-recycling/wipestation/pkg/station_io"
	"github.com/tcs-recycling/wipestation/pkg/wipejob"
)

const journalDir = "/var/log/wipestation"

// ServeCmd runs the wipe station service: device monitor, job engine and
// the browser-facing HTTP/SSE server.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the wipe station web service",
	RunE:  station_cli.Wrap(runServe),
}

func init() {
	ServeCmd.Flags().String("listen", ":8080", "address to serve HTTP on")
	ServeCmd.Flags().String("helper-path", "/usr/local/bin/wipectl", "path to the privileged wipe helper")
	ServeCmd.Flags().StringSlice("protected-disks", []string{"sda"}, "disk names that must never be wiped")
	ServeCmd.Flags().Duration("poll-interval", 2*time.Second, "device inventory poll interval")
}

func runServe(rc *station_io.RuntimeContext, cmd *cobra.Command, args []string) error {
	cfg, v, err := station_config.Load(rc, cmd.Flags())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(rc.Ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	protected := devices.NewProtectedSet(cfg.ProtectedDisks)
	monitor := devices.NewMonitor(
		devices.NewInventory(protected),
		cfg.PollInterval,
		cfg.InventoryTimeout,
		rc.Log,
	)
	validator := guardrail.NewValidator(protected)

	journal, err := audit.NewJournal(journalDir, rc.Log)
	if err != nil {
		// A bench without the log dir still has to function; jobs simply
		// are not journaled.
		rc.Log.Warn("Audit journal unavailable", zap.Error(err))
	}

	engine := wipejob.NewEngine(ctx, monitor, validator,
		wipejob.NewHelperRunner(cfg.HelperPath),
		journalOrNil(journal),
		rc.Log,
		wipejob.Options{
			Retention:    cfg.JobRetention,
			RetentionMax: cfg.JobRetentionMax,
		})

	station_config.Watch(rc, v, func(next *station_config.Config) {
		protected.Replace(next.ProtectedDisks)
		rc.Log.Info("Protected disk list reloaded",
			zap.Strings("protected", next.ProtectedDisks))
	})

	go monitor.Run(ctx)

	srv := server.New(cfg.Listen, monitor, engine, protected, rc.Log)
	return srv.Run(ctx)
}

// journalOrNil keeps the engine's Journal interface nil when the journal
// could not be created (a typed nil would dodge the engine's nil check).
func journalOrNil(j *audit.Journal) wipejob.Journal {
	if j == nil {
		return nil
	}
	return j
}
