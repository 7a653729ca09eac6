package main

import (
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"

	sercom "github.com/miniPCB/SerCom2"
)

func main() {
	var cli CLI

	parser := kong.Must(&cli,
		kong.Name("sercom"),
		kong.Description("Send text commands to a serial device and keep a timestamped log of the responses"),
		kong.UsageOnError(),
		kong.Vars{
			"version": sercom.Version(),
		},
	)

	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	logger := newLogger(cli.LogLevel)
	ctx.FatalIfErrorf(ctx.Run(&logger))
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.WarnLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
