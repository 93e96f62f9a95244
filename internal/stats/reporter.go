package stats

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
)

const MeasurementName = "waveform_stats"

// Reporter periodically logs the statistics and, when a connection is set,
// pushes them as influx line protocol (usually to telegraf over UDP).
type Reporter struct {
	period time.Duration
	conn   io.Writer
	stats  *Statistics
	logger *zap.Logger
	now    func() time.Time
}

func NewReporter(period time.Duration, conn io.Writer, stats *Statistics, logger *zap.Logger) *Reporter {
	return &Reporter{
		period: period,
		conn:   conn,
		stats:  stats,
		logger: logger,
		now:    time.Now,
	}
}

func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("[reporter] received shutdown signal")
			return
		case <-ticker.C:
			r.Report()
		}
	}
}

// Report logs one statistics report and sends it to the connection.
func (r *Reporter) Report() {
	r.logger.Debug("[reporter] statistics", zap.String("report", r.stats.String()))

	if r.conn == nil {
		return
	}
	lines := r.InfluxLines(r.now())
	if err := r.send(lines); err != nil {
		r.logger.Warn("[reporter] error writing statistics to connection", zap.Error(err))
	}
}

// InfluxLines formats the current statistics as influx line protocol.
func (r *Reporter) InfluxLines(ts time.Time) string {
	var b strings.Builder
	stamp := ts.UnixNano()

	dac := r.stats.Dac.Snapshot()
	fmt.Fprintf(&b, "%s,device=dac lost_empty=%di,lost_full=%di,req_exceed=%di,count=%di",
		MeasurementName, dac.LostEmpty, dac.LostFull, dac.ReqExceed, dac.Value.Count)
	writeValueFields(&b, dac.Value)
	fmt.Fprintf(&b, " %d\n", stamp)

	adc := r.stats.Adc.Snapshot()
	fmt.Fprintf(&b, "%s,device=adc lost_full=%di %d\n", MeasurementName, adc.LostFull, stamp)
	for i, v := range adc.Values {
		fmt.Fprintf(&b, "%s,device=adc,channel=%d count=%di", MeasurementName, i, v.Count)
		writeValueFields(&b, v)
		fmt.Fprintf(&b, " %d\n", stamp)
	}
	return b.String()
}

func writeValueFields(b *strings.Builder, v ValueSnapshot) {
	if v.Count == 0 {
		return
	}
	fmt.Fprintf(b, ",last=%di,min=%di,max=%di,avg=%di", v.Last, v.Min, v.Max, v.Avg)
}

func (r *Reporter) send(data string) error {
	buf := []byte(data)
	for len(buf) > 0 {
		n, err := r.conn.Write(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}
