// main.go

package main

import (
	"github.com/tcs-recycling/wipestation/cmd"
	"github.com/tcs-recycling/wipestation/pkg/logger"
	"github.com/tcs-recycling/wipestation/pkg/telemetry"
)

func main() {
	logger.InitializeWithFallback()
	defer logger.Sync()

	if err := telemetry.Init("wipestation"); err != nil {
		logger.L().Warn("Telemetry disabled: " + err.Error())
	}

	cmd.Execute()
}
