// Command goguard-server serves the goGuard account API over HTTP.
//
//	goguard-server -config /etc/goguard.toml
//
// Every setting can also come from GOGUARD_* environment variables, e.g.
// GOGUARD_SESSION_SECRET or GOGUARD_MONGO_URI.
package main

import (
	"flag"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	path := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	app := fx.New(
		Module(configPath(*path)),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)
	app.Run()
}
