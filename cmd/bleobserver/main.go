// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Command bleobserver runs a passive BLE scanner and logs every AdvReport
// it observes. Composition root grounded on cmd/mqttradio/main.go's
// config-file-plus-flags shape.
package main

import (
	"fmt"
	"io/ioutil"
	"log"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"

	"github.com/tve/blell/addr"
	"github.com/tve/blell/hw/simhw"
	"github.com/tve/blell/linklayer"
	"github.com/tve/blell/radio"
	"github.com/tve/blell/timer"
)

// Config is the observer's TOML configuration file layout.
type Config struct {
	Debug      bool
	IntervalMs int `toml:"interval_ms"`
	WindowMs   int `toml:"window_ms"`
}

func main() {
	debug := pflag.Bool("debug", false, "enable verbose logging")
	configFile := pflag.String("config", "bleobserver.toml", "path to config file")
	pflag.Parse()

	config := &Config{IntervalMs: 500, WindowMs: 200}
	if raw, err := ioutil.ReadFile(*configFile); err == nil {
		if err := toml.Unmarshal(raw, config); err != nil {
			fmt.Fprintf(os.Stderr, "cannot parse config file: %s\n", err)
			os.Exit(1)
		}
	}
	if *debug {
		config.Debug = true
	}

	logger := linklayer.LogPrintf(func(string, ...interface{}) {})
	if config.Debug {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
		logger = log.Printf
	}

	var a addr.Addr
	a.Type = addr.Random
	copy(a.Bytes[:], []byte{0xAA, 0xBB, 0x00, 0x11, 0x22, 0x33})

	hwTimer := simhw.NewTimer(8)
	hwRadio := simhw.NewRadio()
	tsvc := timer.New(hwTimer, timer.LogPrintf(logger))
	rdrv := radio.New(hwRadio, radio.LogPrintf(logger))
	ll := linklayer.New(a, rdrv, tsvc, logger)

	if err := ll.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "linklayer init failed: %s\n", err)
		os.Exit(2)
	}
	ll.SetHandler(func(ev linklayer.Event) {
		if ev.Kind != linklayer.EvAdvReport {
			return
		}
		log.Printf("adv report: type=%d peer=%s data=%x", ev.Report.Type, ev.Report.PeerAddr, ev.Report.Data)
	})

	intervalUs := uint32(config.IntervalMs) * 1000
	windowUs := uint32(config.WindowMs) * 1000
	if err := ll.ScanStart(intervalUs, windowUs); err != nil {
		fmt.Fprintf(os.Stderr, "scan start failed: %s\n", err)
		os.Exit(2)
	}

	log.Printf("scanning: interval=%dms window=%dms", config.IntervalMs, config.WindowMs)
	select {} // run forever; stopped by process signal
}
