package main

import (
	"time"

	"github.com/alecthomas/kong"
)

type CLI struct {
	Version  kong.VersionFlag `short:"v" help:"Print version information and exit."`
	LogLevel string           `name:"log-level" help:"Level of diagnostics written to stderr." default:"warn" enum:"debug,info,warn,error" env:"SERCOM_LOG_LEVEL"`

	Ports   PortsCmd   `cmd:"" help:"List the serial ports available on this host."`
	Run     RunCmd     `cmd:"" help:"Send a command set to a device and record the responses."`
	Monitor MonitorCmd `cmd:"" help:"Record unsolicited data from a device until interrupted."`
}

type PortsCmd struct{}

// SessionFlags are shared by the commands that open a session.
type SessionFlags struct {
	Port   string        `short:"p" help:"Serial device, e.g. /dev/ttyUSB0 or COM3." required:"" env:"SERCOM_PORT"`
	Baud   int           `short:"b" help:"Baud rate (9600, 19200, 38400, 57600, 115200)." default:"115200" env:"SERCOM_BAUD"`
	Settle time.Duration `help:"Pause between writing a command and reading the response." default:"100ms"`
	Echo   bool          `help:"Write unsolicited data back to the device."`

	Log       string `name:"log" short:"o" help:"Export the session log to this file on exit." type:"path"`
	LogFormat string `name:"log-format" help:"Format of the exported log; auto picks JSON for .json files." default:"auto" enum:"auto,json,text"`

	MQTTBroker string `name:"mqtt.broker" help:"Forward log entries to this MQTT broker, e.g. tcp://localhost:1883." env:"SERCOM_MQTT_BROKER"`
	MQTTTopic  string `name:"mqtt.topic" help:"Topic the forwarded entries are published on." default:"sercom/log"`

	Quiet bool `short:"q" help:"Do not print log entries to stdout."`
}

type RunCmd struct {
	SessionFlags `embed:""`

	Commands string        `short:"c" help:"Command set file (.json, .yaml or one command per line)." required:"" type:"existingfile"`
	Format   string        `help:"Format of the command set file." default:"auto" enum:"auto,json,yaml,text"`
	Send     []int         `help:"Send only these zero-based command indices, in order. Default: all."`
	Listen   time.Duration `help:"Keep the session open this long after the last command." default:"0s"`
}

type MonitorCmd struct {
	SessionFlags `embed:""`

	For time.Duration `help:"Stop after this long. Default: until interrupted." default:"0s"`
}
