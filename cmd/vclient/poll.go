package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/zberg/go-vclient/internal/metrics"
	"github.com/zberg/go-vclient/internal/sink"
	"github.com/zberg/go-vclient/internal/sink/influx"
	"github.com/zberg/go-vclient/internal/sink/mqtt"
	"github.com/zberg/go-vclient/pkg/vcontrold"
)

func init() {
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(serveCmd)

	for _, c := range []*cobra.Command{pollCmd, serveCmd} {
		c.Flags().String("schedule", "", `Cron schedule with seconds (default "0 * * * * *")`)
		c.Flags().StringSliceP("group", "g", nil, "Poll the members of a group (repeatable)")
		c.Flags().StringSliceP("item", "i", nil, "Poll an item (repeatable)")
		c.Flags().Bool("identify", false, "Ask for the device type first and skip commands it does not support")
		c.Flags().String("mqtt", "", "MQTT broker URL, e.g. tcp://broker:1883")
		c.Flags().String("influx", "", "InfluxDB URL, e.g. http://influx:8086")
	}
	pollCmd.Flags().Bool("once", false, "Poll once and exit")
	pollCmd.Flags().BoolP("quiet", "q", false, "Do not print results")
	serveCmd.Flags().String("listen", "", `Metrics listen address (default ":9102")`)
}

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Poll items on a schedule and forward them to MQTT or InfluxDB",
	Example: `  vclient poll --once -g temperature --mqtt tcp://broker:1883
  vclient poll --schedule "*/30 * * * * *" --influx http://influx:8086`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		once, _ := cmd.Flags().GetBool("once")
		quiet, _ := cmd.Flags().GetBool("quiet")

		j, err := newJob(cmd)
		if err != nil {
			return err
		}
		defer j.close()
		if !quiet {
			j.out = os.Stdout
		}

		if once {
			return j.run(ctx)
		}
		return schedule(ctx, cfg.Poll.Schedule, j)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll on a schedule and expose the values as Prometheus metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		j, err := newJob(cmd)
		if err != nil {
			return err
		}
		defer j.close()
		j.exporter = metrics.New()

		srv := &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           newMux(j.exporter),
			ReadHeaderTimeout: 5 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("serving metrics", "addr", srv.Addr, "path", cfg.Metrics.Path)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		schedCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err, ok := <-errCh; ok {
				logger.Error("metrics server failed", "error", err)
				cancel()
			}
		}()

		serr := schedule(schedCtx, cfg.Poll.Schedule, j)

		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
		return serr
	},
}

func newMux(e *metrics.Exporter) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, e.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// pollSelector picks the items to poll: flags first, then the poll section
// of the config, then every enabled item.
func pollSelector(groups, items []string) vcontrold.Selector {
	if len(groups) == 0 && len(items) == 0 {
		groups, items = cfg.Poll.Groups, cfg.Poll.Items
	}
	sel := vcontrold.Select(groups, items)
	if sel.Empty() {
		return vcontrold.All()
	}
	return sel
}

// job is one scheduled query and the places its result goes.
type job struct {
	sel      vcontrold.Selector
	fetch    func(ctx context.Context) (*vcontrold.Result, error)
	sinks    sink.Multi
	exporter *metrics.Exporter
	out      io.Writer
	format   func(*vcontrold.Result) (string, error)
	logger   *slog.Logger
}

func newJob(cmd *cobra.Command) (*job, error) {
	groups, _ := cmd.Flags().GetStringSlice("group")
	items, _ := cmd.Flags().GetStringSlice("item")
	identify, _ := cmd.Flags().GetBool("identify")

	sinks, err := openSinks(cmd.Context())
	if err != nil {
		return nil, err
	}

	sel := pollSelector(groups, items)
	return &job{
		sel: sel,
		fetch: func(ctx context.Context) (*vcontrold.Result, error) {
			return query(ctx, sel, identify)
		},
		sinks: sinks,
		format: func(res *vcontrold.Result) (string, error) {
			return vcontrold.Format(res, cfg.FormatKind(), cfg.FormatOptions())
		},
		logger: logger,
	}, nil
}

// openSinks connects every configured sink. Sinks opened before a failure
// are closed again.
func openSinks(ctx context.Context) (sink.Multi, error) {
	var sinks sink.Multi

	if cfg.MQTT.Enabled() {
		p, err := mqtt.Connect(cfg.MQTT, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, p)
	}

	if cfg.InfluxDB.Enabled() {
		w, err := influx.Connect(ctx, cfg.InfluxDB, logger)
		if err != nil {
			_ = sinks.Close()
			return nil, err
		}
		sinks = append(sinks, w)
	}
	return sinks, nil
}

// run executes one query. Sink failures are logged and do not fail the run.
func (j *job) run(ctx context.Context) error {
	res, err := j.fetch(ctx)
	if j.exporter != nil {
		j.exporter.Observe(res, err)
	}

	if res != nil {
		if j.out != nil && j.format != nil {
			out, ferr := j.format(res)
			if ferr != nil {
				return ferr
			}
			fmt.Fprint(j.out, out)
		}
		if serr := j.sinks.Write(ctx, res); serr != nil {
			j.logger.Warn("forwarding result failed", "error", serr)
		}
	}

	if err != nil {
		j.logger.Error("poll failed", "selector", j.sel.String(), "error", err)
		return err
	}
	j.logger.Info("poll complete", "selector", j.sel.String(), "items", res.Len(), "failed", len(res.Failed()), "elapsed", res.Meta.Elapsed)
	return nil
}

func (j *job) close() {
	if err := j.sinks.Close(); err != nil {
		j.logger.Warn("closing sinks", "error", err)
	}
}

// schedule runs j once, then on every tick of spec until ctx is done. A tick
// is skipped while the previous run is still busy.
func schedule(ctx context.Context, spec string, j *job) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	cl := cronLogger{logger: j.logger}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(spec, func() { _ = j.run(ctx) }); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	_ = j.run(ctx)
	c.Start()
	j.logger.Info("polling", "schedule", spec, "selector", j.sel.String())

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// cronLogger routes cron's own messages to slog at debug level.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
