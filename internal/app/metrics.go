package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the game counters exported on /metrics.
type Metrics struct {
	GamesCreated  prometheus.Counter
	GamesFinished *prometheus.CounterVec
	Opens         *prometheus.CounterVec
	ActiveGames   prometheus.Gauge
	Revealed      prometheus.Histogram
}

// NewMetrics registers the collectors on reg, or on a private registry when
// reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		GamesCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: "minesweeper",
			Name:      "games_created_total",
			Help:      "Games created.",
		}),
		GamesFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "minesweeper",
			Name:      "games_finished_total",
			Help:      "Games finished, by final status.",
		}, []string{"status"}),
		Opens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "minesweeper",
			Name:      "opens_total",
			Help:      "Open requests, by result.",
		}, []string{"result"}),
		ActiveGames: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "minesweeper",
			Name:      "active_games",
			Help:      "Games currently held in memory.",
		}),
		Revealed: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "minesweeper",
			Name:      "cells_revealed",
			Help:      "Cells revealed by a single open, flood fill included.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
}
