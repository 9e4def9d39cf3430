// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Command blebroadcaster runs a non-connectable BLE broadcaster: it starts
// the Link Layer advertising ADV_NONCONN_IND on all three advertising
// channels with a caller-configured AD payload. Composition root grounded on
// cmd/mqttradio/main.go's config-file-plus-flags shape.
package main

import (
	"fmt"
	"io/ioutil"
	"log"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"

	"github.com/tve/blell/addr"
	"github.com/tve/blell/gap"
	"github.com/tve/blell/hw/simhw"
	"github.com/tve/blell/linklayer"
	"github.com/tve/blell/pdu"
	"github.com/tve/blell/radio"
	"github.com/tve/blell/timer"
)

// Config is the broadcaster's TOML configuration file layout.
type Config struct {
	Debug       bool
	Address     string
	IntervalMs  int    `toml:"interval_ms"`
	Name        string
	MftData     string `toml:"mft_data"`
}

func main() {
	debug := pflag.Bool("debug", false, "enable verbose logging")
	configFile := pflag.String("config", "blebroadcaster.toml", "path to config file")
	pflag.Parse()

	config := &Config{IntervalMs: 1280, Name: "blessed device"}
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
	copy(a.Bytes[:], []byte{0xEE, 0xFF, 0x00, 0x11, 0x22, 0x33})

	hwTimer := simhw.NewTimer(8)
	hwRadio := simhw.NewRadio()
	tsvc := timer.New(hwTimer, timer.LogPrintf(logger))
	rdrv := radio.New(hwRadio, radio.LogPrintf(logger))
	ll := linklayer.New(a, rdrv, tsvc, logger)

	if err := ll.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "linklayer init failed: %s\n", err)
		os.Exit(2)
	}

	var adData []byte
	adData, _ = gap.PutAD(adData, gap.ADFlags, []byte{0x06})
	adData, _ = gap.PutAD(adData, gap.ADNameComplete, []byte(config.Name))
	if config.MftData != "" {
		adData, _ = gap.PutAD(adData, gap.ADMftData, []byte(config.MftData))
	}
	if err := ll.SetAdvertisingData(adData); err != nil {
		fmt.Fprintf(os.Stderr, "set advertising data failed: %s\n", err)
		os.Exit(2)
	}

	intervalUs := uint32(config.IntervalMs) * 1000
	if err := ll.AdvertiseStart(pdu.AdvNonconnInd, intervalUs, 0x7); err != nil {
		fmt.Fprintf(os.Stderr, "advertise start failed: %s\n", err)
		os.Exit(2)
	}

	log.Printf("broadcasting as %s every %dms", a, config.IntervalMs)
	select {} // run forever; stopped by process signal
}
