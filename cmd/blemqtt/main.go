// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Command blemqtt bridges Link Layer scan events to an MQTT broker: every
// AdvReport is published as a JSON message. Composition root grounded on
// cmd/mqttradio/main.go + mqtt.go's config-file-plus-broker-connection
// shape, trimmed to the one-way publish path this gateway needs.
package main

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/pflag"

	"github.com/tve/blell/addr"
	"github.com/tve/blell/hw/simhw"
	"github.com/tve/blell/linklayer"
	"github.com/tve/blell/radio"
	"github.com/tve/blell/timer"
)

// Config is blemqtt's TOML configuration file layout.
type Config struct {
	Debug      bool
	IntervalMs int `toml:"interval_ms"`
	WindowMs   int `toml:"window_ms"`
	Mqtt       MqttConfig
}

// MqttConfig is the broker connection, the same shape as mqttradio's.
type MqttConfig struct {
	Host   string
	Port   int
	User   string
	Password string
	Topic  string
}

// advReportMsg is the JSON payload published for each observed PDU.
type advReportMsg struct {
	Type     uint8  `json:"type"`
	PeerAddr string `json:"peer_addr"`
	Data     string `json:"data"`
}

func main() {
	debug := pflag.Bool("debug", false, "enable verbose logging")
	configFile := pflag.String("config", "blemqtt.toml", "path to config file")
	pflag.Parse()

	config := &Config{IntervalMs: 500, WindowMs: 200, Mqtt: MqttConfig{Port: 1883, Topic: "ble/adv"}}
	raw, err := ioutil.ReadFile(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot access config file: %s\n", err)
		os.Exit(1)
	}
	if err := toml.Unmarshal(raw, config); err != nil {
		fmt.Fprintf(os.Stderr, "cannot parse config file: %s\n", err)
		os.Exit(1)
	}
	if *debug {
		config.Debug = true
	}

	logger := linklayer.LogPrintf(func(string, ...interface{}) {})
	if config.Debug {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
		logger = log.Printf
	}

	mqtt.ERROR = log.New(os.Stderr, "", 0)
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", config.Mqtt.Host, config.Mqtt.Port))
	opts.ClientID = "blemqtt"
	opts.Username = config.Mqtt.User
	opts.Password = config.Mqtt.Password
	client := mqtt.NewClient(opts)
	if token := client.Connect(); !token.WaitTimeout(10 * time.Second) {
		fmt.Fprintf(os.Stderr, "mqtt connect failed: %s\n", token.Error())
		os.Exit(2)
	}
	log.Printf("MQTT connected to %s:%d", config.Mqtt.Host, config.Mqtt.Port)

	var a addr.Addr
	a.Type = addr.Random
	copy(a.Bytes[:], []byte{0xCC, 0xDD, 0x00, 0x11, 0x22, 0x33})

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
		msg := advReportMsg{
			Type:     ev.Report.Type,
			PeerAddr: ev.Report.PeerAddr.String(),
			Data:     fmt.Sprintf("%x", ev.Report.Data),
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			return
		}
		client.Publish(config.Mqtt.Topic, 1, false, payload)
	})

	intervalUs := uint32(config.IntervalMs) * 1000
	windowUs := uint32(config.WindowMs) * 1000
	if err := ll.ScanStart(intervalUs, windowUs); err != nil {
		fmt.Fprintf(os.Stderr, "scan start failed: %s\n", err)
		os.Exit(2)
	}

	log.Printf("bridging adv reports to MQTT topic %s", config.Mqtt.Topic)
	select {} // run forever; stopped by process signal
}
