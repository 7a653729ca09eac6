package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	sercom "github.com/miniPCB/SerCom2"
	"github.com/miniPCB/SerCom2/mqttrelay"
)

func (c *PortsCmd) Run(log *zerolog.Logger) error {
	ports, err := sercom.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		return nil
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	log.Debug().Int("count", len(ports)).Msg("ports listed")
	return nil
}

func (c *RunCmd) Run(log *zerolog.Logger) error {
	format, err := sercom.ParseCommandFormat(c.Format)
	if err != nil {
		return err
	}

	b, err := c.begin(log)
	if err != nil {
		return err
	}
	defer b.end()

	ctl := b.ctl
	if _, err := ctl.LoadCommandSet(c.Commands, format); err != nil {
		return err
	}

	var sendErr error
	if len(c.Send) == 0 {
		_, sendErr = ctl.SendAll()
	} else {
		for _, i := range c.Send {
			if _, err := ctl.Send(i); err != nil {
				sendErr = errors.Join(sendErr, fmt.Errorf("command %d: %w", i, err))
			}
		}
	}

	if c.Listen > 0 && ctl.IsConnected() {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		wait(ctx, c.Listen)
	}

	return errors.Join(sendErr, b.export())
}

func (c *MonitorCmd) Run(log *zerolog.Logger) error {
	b, err := c.begin(log)
	if err != nil {
		return err
	}
	defer b.end()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log.Info().Str("port", c.Port).Msg("monitoring; press Ctrl+C to stop")
	wait(ctx, c.For)

	return b.export()
}

// wait returns when ctx is done or, if d is positive, after d.
func wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		<-ctx.Done()
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// bench is an open controller with its log consumers attached.
type bench struct {
	flags *SessionFlags
	ctl   *sercom.Controller
	log   *zerolog.Logger

	wg     sync.WaitGroup
	client *mqttrelay.Client
}

func (f *SessionFlags) begin(log *zerolog.Logger) (*bench, error) {
	b := &bench{flags: f, log: log}
	b.ctl = sercom.NewController(sercom.Config{SettleDelay: f.Settle, Logger: log})

	if !f.Quiet {
		entries, _ := b.ctl.Subscribe(256)
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			for e := range entries {
				_ = sercom.WriteText(os.Stdout, []sercom.Entry{e})
			}
		}()
	}

	if f.MQTTBroker != "" {
		client, err := mqttrelay.NewClient(f.MQTTBroker, "sercom-"+hostname())
		if err != nil {
			b.end()
			return nil, err
		}
		b.client = mqttrelay.NewPublisher(client)
		fwd := mqttrelay.NewForwarder(b.client, f.MQTTTopic, log.With().Str("component", "mqttrelay").Logger())
		fwd.Session = b.ctl.SessionID
		entries, _ := b.ctl.Subscribe(1024)
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			n, _ := fwd.Run(context.Background(), entries)
			log.Info().Int("published", n).Str("broker", f.MQTTBroker).Msg("relay stopped")
		}()
	}

	if err := b.ctl.Connect(sercom.Params{Port: f.Port, BaudRate: f.Baud}); err != nil {
		b.end()
		return nil, err
	}
	if f.Echo {
		b.ctl.ToggleEcho()
	}
	return b, nil
}

func (b *bench) export() error {
	if b.flags.Log == "" {
		return nil
	}
	format, err := sercom.ParseLogFormat(b.flags.LogFormat)
	if err != nil {
		return err
	}
	return b.ctl.ExportLog(b.flags.Log, format)
}

// end disconnects, closes the subscriptions and waits for the consumers to
// drain them.
func (b *bench) end() {
	if err := b.ctl.Close(); err != nil {
		b.log.Warn().Err(err).Msg("close failed")
	}
	b.wg.Wait()
	if d := b.ctl.Journal().Dropped(); d > 0 {
		b.log.Warn().Uint64("dropped", d).Msg("log consumers fell behind")
	}
	if b.client != nil {
		b.client.Close()
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
