// Package sercom is a serial session engine for bench-testing embedded and
// IoT devices: it sends text commands over a serial link, captures the
// device's responses with their latency and keeps a timestamped log.
//
// Features:
//   - Raw, unbuffered termios handle on Linux; go.bug.st/serial elsewhere
//   - Command round-trips with a fixed settle delay (write, wait, drain)
//   - Background reader reporting unsolicited data, with optional echo
//   - Hangup detection: an unplugged device ends the session
//   - Command sets from JSON, YAML or commented text files
//   - Append-only log with live subscriptions and JSON/text export
//   - PTY-based tests for the Linux handle
//
// Front-ends (shells, TUIs, GUIs) drive a Controller and subscribe to its
// log. All Controller methods are synchronous; the only goroutine the
// engine runs is the reader of the open session.
//
// Example usage:
//
//	ctl := sercom.NewController(sercom.Config{})
//	defer ctl.Close()
//
//	entries, cancel := ctl.Subscribe(64)
//	defer cancel()
//	go func() {
//	    for e := range entries {
//	        fmt.Println(e.Timestamp(), e.Description, e.Command, e.Response)
//	    }
//	}()
//
//	if err := ctl.Connect(sercom.Params{Port: "/dev/ttyUSB0", BaudRate: 115200}); err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := ctl.LoadCommandSet("commands.txt", sercom.FormatAuto); err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := ctl.SendAll(); err != nil {
//	    log.Println("batch stopped:", err)
//	}
//	_ = ctl.ExportLog("session.json", sercom.LogFormatJSON)
package sercom
