package stats

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "waveform"

// Collector exposes a Statistics snapshot to Prometheus on every scrape.
type Collector struct {
	stats *Statistics

	dacLostEmpty *prometheus.Desc
	dacLostFull  *prometheus.Desc
	dacReqExceed *prometheus.Desc
	adcLostFull  *prometheus.Desc
	sampleCount  *prometheus.Desc
	sampleValue  *prometheus.Desc
}

func NewCollector(s *Statistics) *Collector {
	return &Collector{
		stats: s,
		dacLostEmpty: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "dac", "lost_empty_total"),
			"DAC points lost because no published data was available",
			nil, nil,
		),
		dacLostFull: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "dac", "lost_full_total"),
			"DAC points dropped because unread data was overwritten",
			nil, nil,
		),
		dacReqExceed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "dac", "req_exceed_total"),
			"DAC demand delivered beyond max_len in a single request",
			nil, nil,
		),
		adcLostFull: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "adc", "lost_full_total"),
			"ADC points dropped because the previous array was not accepted",
			nil, nil,
		),
		sampleCount: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "samples_total"),
			"Samples seen per device and channel",
			[]string{"device", "channel"}, nil,
		),
		sampleValue: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sample_value"),
			"Sample value aggregates in device units",
			[]string{"device", "channel", "stat"}, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.dacLostEmpty
	ch <- c.dacLostFull
	ch <- c.dacReqExceed
	ch <- c.adcLostFull
	ch <- c.sampleCount
	ch <- c.sampleValue
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	dac := c.stats.Dac.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.dacLostEmpty, prometheus.CounterValue, float64(dac.LostEmpty))
	ch <- prometheus.MustNewConstMetric(c.dacLostFull, prometheus.CounterValue, float64(dac.LostFull))
	ch <- prometheus.MustNewConstMetric(c.dacReqExceed, prometheus.CounterValue, float64(dac.ReqExceed))
	c.collectValue(ch, "dac", "0", dac.Value)

	adc := c.stats.Adc.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.adcLostFull, prometheus.CounterValue, float64(adc.LostFull))
	for i, v := range adc.Values {
		c.collectValue(ch, "adc", strconv.Itoa(i), v)
	}
}

func (c *Collector) collectValue(ch chan<- prometheus.Metric, device, channel string, v ValueSnapshot) {
	ch <- prometheus.MustNewConstMetric(c.sampleCount, prometheus.CounterValue, float64(v.Count), device, channel)
	if v.Count == 0 {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.sampleValue, prometheus.GaugeValue, float64(v.Last), device, channel, "last")
	ch <- prometheus.MustNewConstMetric(c.sampleValue, prometheus.GaugeValue, float64(v.Min), device, channel, "min")
	ch <- prometheus.MustNewConstMetric(c.sampleValue, prometheus.GaugeValue, float64(v.Max), device, channel, "max")
	ch <- prometheus.MustNewConstMetric(c.sampleValue, prometheus.GaugeValue, float64(v.Avg), device, channel, "avg")
}

var _ prometheus.Collector = (*Collector)(nil)
