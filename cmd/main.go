package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sleepywoodpecker/rp-goes-waveform/internal/config"
	"sleepywoodpecker/rp-goes-waveform/internal/dac"
	"sleepywoodpecker/rp-goes-waveform/internal/link"
	"sleepywoodpecker/rp-goes-waveform/internal/logger"
	"sleepywoodpecker/rp-goes-waveform/internal/pv"
	"sleepywoodpecker/rp-goes-waveform/internal/session"
	"sleepywoodpecker/rp-goes-waveform/internal/stats"
)

const shutdownTimeout = 500 * time.Millisecond

var (
	cfgFile      string
	logLevel     string
	waveformFile string
)

var rootCmd = &cobra.Command{
	Use:   "rp-goes-waveform",
	Short: "Stream waveforms to the MCU DAC and collect ADC samples over a serial link",
	Long: `rp-goes-waveform keeps the MCU DAC fed from a double buffered waveform.
The MCU reports how many samples it wants; the host answers with exactly that
many, either playing each waveform once or looping it until a new one arrives.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "waveform.yaml", "config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&waveformFile, "waveform", "", "YAML file with a waveform to publish on every refill request")
}

func main() {
	// context handler for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	mode, err := cfg.Dac.Mode()
	if err != nil {
		return err
	}

	// first initialize the main logger
	log, err := logger.NewLogger(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		return err
	}

	var waveform []float64
	if waveformFile != "" {
		if waveform, err = loadWaveform(waveformFile, cfg.Dac.MaxLen); err != nil {
			return err
		}
	}

	// initialize UDP connection to telegraf
	var telegraf io.Writer
	if cfg.Stats.TelegrafAddr != "" {
		udpAddr, err := net.ResolveUDPAddr("udp", cfg.Stats.TelegrafAddr)
		if err != nil {
			return fmt.Errorf("failed to resolve telegraf address: %w", err)
		}
		udpConn, err := net.DialUDP("udp", nil, udpAddr)
		if err != nil {
			return fmt.Errorf("failed to dial telegraf: %w", err)
		}
		defer udpConn.Close()
		telegraf = udpConn
	}

	port, err := link.OpenSerial(cfg.Serial.Port, cfg.Serial.BaudRate, cfg.Serial.ReadTimeout)
	if err != nil {
		return err
	}

	array := pv.NewArray[float64](cfg.Dac.MaxLen)
	adcArrays := make([]*pv.ArrayVar[float64], cfg.Adc.Channels)
	adcSinks := make([]pv.ArraySink[float64], cfg.Adc.Channels)
	for i := range adcArrays {
		adcArrays[i] = pv.NewArray[float64](cfg.Adc.MaxLen)
		adcSinks[i] = adcArrays[i]
	}

	sess := session.New(port, session.Options{
		PortName: cfg.Serial.Port,
		Dac: dac.Config{
			MsgMaxPoints: cfg.Dac.MsgMaxPoints,
			SwapTimeout:  cfg.Dac.SwapTimeout,
			Mode:         mode,
		},
		DacVars: dac.Vars{
			Array:    array,
			Scalar:   pv.NewScalar(0.0),
			Mode:     pv.NewScalar(mode),
			State:    pv.NewScalar(true),
			Addition: pv.NewScalar(0.0),
		},
		AdcOutputs:  adcSinks,
		KeepAlive:   cfg.Serial.KeepAlive,
		StatsPeriod: cfg.Stats.Period,
		Telegraf:    telegraf,
	}, log)
	defer func() {
		if err := sess.Close(); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}()

	log.Info("[main] starting",
		zap.String("port", cfg.Serial.Port),
		zap.Int("baudrate", cfg.Serial.BaudRate),
		zap.Stringer("mode", mode),
		zap.Int("maxLen", cfg.Dac.MaxLen),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sess.Run(ctx) })
	g.Go(func() error { return feedWaveform(ctx, sess.RefillRequest(), array, waveform, log) })
	for i, a := range adcArrays {
		g.Go(func() error { return drainAdc(ctx, i, a, log) })
	}
	if cfg.Stats.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(ctx, cfg.Stats.MetricsAddr, sess.Stats(), log) })
	}

	err = g.Wait()
	log.Info("[main] shutdown complete", zap.String("report", sess.Stats().String()))
	return err
}

func serveMetrics(ctx context.Context, addr string, st *stats.Statistics, log *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		stats.NewCollector(st),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("[main] serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("[main] metrics server: %w", err)
	}
	return nil
}
