package metrics

import (
	"net/http"
	"strconv"

	"github.com/Dosada05/bracket-picks/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what services report to. NoOp is used in tests and when metrics are disabled.
type Recorder interface {
	PicksSubmitted(stage models.Stage, count int)
	WinnerRecorded(stage models.Stage)
	RoundScored(stage models.Stage, picks int)
	RoundAdvanced(stage models.Stage, created bool)
}

type NoOp struct{}

func (NoOp) PicksSubmitted(models.Stage, int) {}
func (NoOp) WinnerRecorded(models.Stage)      {}
func (NoOp) RoundScored(models.Stage, int)    {}
func (NoOp) RoundAdvanced(models.Stage, bool) {}

type Prometheus struct {
	registry       *prometheus.Registry
	picksSubmitted *prometheus.CounterVec
	winners        *prometheus.CounterVec
	picksScored    *prometheus.CounterVec
	roundsScored   *prometheus.CounterVec
	advances       *prometheus.CounterVec
}

func NewPrometheus(namespace string) *Prometheus {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	p := &Prometheus{
		registry: registry,
		picksSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "picks_submitted_total",
			Help:      "Picks written by pick submissions.",
		}, []string{"stage"}),
		winners: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "winners_recorded_total",
			Help:      "Game results entered or cleared by admins.",
		}, []string{"stage"}),
		picksScored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "picks_scored_total",
			Help:      "Pick point values written by round scoring.",
		}, []string{"stage"}),
		roundsScored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_scored_total",
			Help:      "Round scoring passes.",
		}, []string{"stage"}),
		advances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "round_advances_total",
			Help:      "Round advancement requests, by whether the successor was created.",
		}, []string{"stage", "created"}),
	}
	registry.MustRegister(p.picksSubmitted, p.winners, p.picksScored, p.roundsScored, p.advances)
	return p
}

func (p *Prometheus) PicksSubmitted(stage models.Stage, count int) {
	p.picksSubmitted.WithLabelValues(stage.ShortName()).Add(float64(count))
}

func (p *Prometheus) WinnerRecorded(stage models.Stage) {
	p.winners.WithLabelValues(stage.ShortName()).Inc()
}

func (p *Prometheus) RoundScored(stage models.Stage, picks int) {
	p.roundsScored.WithLabelValues(stage.ShortName()).Inc()
	p.picksScored.WithLabelValues(stage.ShortName()).Add(float64(picks))
}

func (p *Prometheus) RoundAdvanced(stage models.Stage, created bool) {
	p.advances.WithLabelValues(stage.ShortName(), strconv.FormatBool(created)).Inc()
}

// Handler exposes the registry for scraping.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}
