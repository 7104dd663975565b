// Copyright 2020 thinkgos (thinkgo@aliyun.com).  All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package exporter publishes sequencer housekeeping state as
// prometheus metrics.
package exporter

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rob-gra/go-storedcmd/sequencer"
)

// HkSource supplies housekeeping snapshots. *sequencer.Sequencer
// satisfies it; snapshots must be taken from the sequencer's owner
// goroutine, so wire Collect through a scrape that coordinates with
// the run loop, or a cached snapshot.
type HkSource interface {
	Housekeeping() sequencer.Housekeeping
}

// Collector implements prometheus.Collector over a housekeeping
// source.
type Collector struct {
	src HkSource

	cmdTotal          *prometheus.Desc
	cmdErrTotal       *prometheus.Desc
	atsCmdTotal       *prometheus.Desc
	atsCmdErrTotal    *prometheus.Desc
	rtsCmdTotal       *prometheus.Desc
	rtsCmdErrTotal    *prometheus.Desc
	rtsActiveTotal    *prometheus.Desc
	rtsActiveErrTotal *prometheus.Desc
	rtsActive         *prometheus.Desc
	atpState          *prometheus.Desc
	switchPend        *prometheus.Desc
	nextAtsTime       *prometheus.Desc
	nextRtsTime       *prometheus.Desc
	atsFreeBytes      *prometheus.Desc
}

// New creates a collector reading from src.
func New(src HkSource) *Collector {
	return &Collector{
		src: src,
		cmdTotal: prometheus.NewDesc("storedcmd_requests_total",
			"Ground requests accepted.", nil, nil),
		cmdErrTotal: prometheus.NewDesc("storedcmd_request_errors_total",
			"Ground requests rejected.", nil, nil),
		atsCmdTotal: prometheus.NewDesc("storedcmd_ats_commands_total",
			"Commands sent by the ATS processor.", nil, nil),
		atsCmdErrTotal: prometheus.NewDesc("storedcmd_ats_command_errors_total",
			"ATS command errors.", nil, nil),
		rtsCmdTotal: prometheus.NewDesc("storedcmd_rts_commands_total",
			"Commands sent by all RTS.", nil, nil),
		rtsCmdErrTotal: prometheus.NewDesc("storedcmd_rts_command_errors_total",
			"RTS command errors.", nil, nil),
		rtsActiveTotal: prometheus.NewDesc("storedcmd_rts_started_total",
			"RTS started without error.", nil, nil),
		rtsActiveErrTotal: prometheus.NewDesc("storedcmd_rts_start_errors_total",
			"RTS start attempts that failed.", nil, nil),
		rtsActive: prometheus.NewDesc("storedcmd_rts_active",
			"RTS currently executing.", nil, nil),
		atpState: prometheus.NewDesc("storedcmd_atp_state",
			"ATP state value.", nil, nil),
		switchPend: prometheus.NewDesc("storedcmd_switch_pending",
			"1 while an ATS switch waits for a quiet tick.", nil, nil),
		nextAtsTime: prometheus.NewDesc("storedcmd_next_ats_time_seconds",
			"Absolute time of the next ATS command.", nil, nil),
		nextRtsTime: prometheus.NewDesc("storedcmd_next_rts_time_seconds",
			"Absolute time of the next RTS command.", nil, nil),
		atsFreeBytes: prometheus.NewDesc("storedcmd_ats_free_bytes",
			"Free bytes in an ATS buffer.", []string{"ats"}, nil),
	}
}

var _ prometheus.Collector = (*Collector)(nil)

// Describe implements prometheus.Collector.
func (sf *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- sf.cmdTotal
	descs <- sf.cmdErrTotal
	descs <- sf.atsCmdTotal
	descs <- sf.atsCmdErrTotal
	descs <- sf.rtsCmdTotal
	descs <- sf.rtsCmdErrTotal
	descs <- sf.rtsActiveTotal
	descs <- sf.rtsActiveErrTotal
	descs <- sf.rtsActive
	descs <- sf.atpState
	descs <- sf.switchPend
	descs <- sf.nextAtsTime
	descs <- sf.nextRtsTime
	descs <- sf.atsFreeBytes
}

// Collect implements prometheus.Collector.
func (sf *Collector) Collect(metrics chan<- prometheus.Metric) {
	hk := sf.src.Housekeeping()

	metrics <- prometheus.MustNewConstMetric(sf.cmdTotal, prometheus.CounterValue, float64(hk.CmdCtr))
	metrics <- prometheus.MustNewConstMetric(sf.cmdErrTotal, prometheus.CounterValue, float64(hk.CmdErrCtr))
	metrics <- prometheus.MustNewConstMetric(sf.atsCmdTotal, prometheus.CounterValue, float64(hk.AtsCmdCtr))
	metrics <- prometheus.MustNewConstMetric(sf.atsCmdErrTotal, prometheus.CounterValue, float64(hk.AtsCmdErrCtr))
	metrics <- prometheus.MustNewConstMetric(sf.rtsCmdTotal, prometheus.CounterValue, float64(hk.RtsCmdCtr))
	metrics <- prometheus.MustNewConstMetric(sf.rtsCmdErrTotal, prometheus.CounterValue, float64(hk.RtsCmdErrCtr))
	metrics <- prometheus.MustNewConstMetric(sf.rtsActiveTotal, prometheus.CounterValue, float64(hk.RtsActiveCtr))
	metrics <- prometheus.MustNewConstMetric(sf.rtsActiveErrTotal, prometheus.CounterValue, float64(hk.RtsActiveErrCtr))
	metrics <- prometheus.MustNewConstMetric(sf.rtsActive, prometheus.GaugeValue, float64(hk.NumRtsActive))
	metrics <- prometheus.MustNewConstMetric(sf.atpState, prometheus.GaugeValue, float64(hk.AtpState))
	metrics <- prometheus.MustNewConstMetric(sf.switchPend, prometheus.GaugeValue, float64(hk.SwitchPendFlag))
	metrics <- prometheus.MustNewConstMetric(sf.nextAtsTime, prometheus.GaugeValue, float64(hk.NextAtsTime))
	metrics <- prometheus.MustNewConstMetric(sf.nextRtsTime, prometheus.GaugeValue, float64(hk.NextRtsTime))

	for i, free := range hk.AtpFreeBytes {
		metrics <- prometheus.MustNewConstMetric(sf.atsFreeBytes, prometheus.GaugeValue,
			float64(free), strconv.Itoa(i+1))
	}
}
