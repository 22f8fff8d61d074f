package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	simpletq "github.com/UniQw/simpletq"
	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "stq:", err)
		stop()
		os.Exit(1)
	}
}

// loggingMiddleware logs start/end and duration for each task.
func loggingMiddleware(l simpletq.Logger) simpletq.Middleware {
	return func(next simpletq.Executor) simpletq.Executor {
		return func(ctx context.Context, job simpletq.Job) (simpletq.Result, error) {
			start := time.Now()
			l.Debugf("task start: name=%s dir=%s", job.Name, job.Dir)
			res, err := next(ctx, job)
			l.Debugf("task end: name=%s exit=%d dur=%s", job.Name, res.ExitCode, time.Since(start))
			return res, err
		}
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "stq QUEUE_DIRECTORY",
		Short: "A very simple filesystem task queue",
		Long: `stq keeps shell tasks as files below QUEUE_DIRECTORY.

With --add-task the command is queued and stq exits. Otherwise stq becomes a
worker that runs queued tasks one at a time, oldest first, and moves each
record to FINISHED or FAILED depending on its exit status.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := expandPath(args[0])
			if err != nil {
				return err
			}
			if err := loadConfig(v, cmd, root); err != nil {
				return err
			}
			lvl, err := simpletq.ParseLevel(v.GetString("log-level"))
			if err != nil {
				return err
			}
			log := &simpletq.FmtLogger{Out: cmd.OutOrStdout(), Err: cmd.ErrOrStderr(), Min: lvl}

			var rdb *redis.Client
			var pub simpletq.Publisher
			if addr := v.GetString("redis-addr"); addr != "" {
				rdb = redis.NewClient(&redis.Options{
					Addr:                  addr,
					Password:              v.GetString("redis-password"),
					ContextTimeoutEnabled: true,
				})
				defer rdb.Close()
				stream := v.GetString("redis-stream")
				if stream == "" {
					stream = simpletq.EventStream(filepath.Base(root))
				}
				pub = simpletq.NewRedisPublisher(rdb, stream, v.GetInt64("redis-maxlen"))
			}

			switch {
			case v.GetString("add-task") != "":
				return addTask(cmd.Context(), cmd.OutOrStdout(), root, v, log, pub)
			case v.GetBool("status"):
				return printStatus(cmd.OutOrStdout(), root, log)
			default:
				return runWorker(cmd.Context(), cmd.OutOrStdout(), root, v, log, pub)
			}
		},
	}

	f := cmd.Flags()
	f.StringP("add-task", "a", "", "add task to the queue")
	f.StringP("task-name", "n", "", "name of the new task")
	f.StringP("working-dir", "d", "", "working directory of the new task")
	f.Bool("status", false, "list the records in every state and exit")
	f.Duration("poll-interval", 10*time.Second, "sleep between polls of an empty queue")
	f.Duration("race-pause", time.Second, "pause after losing a task to another worker")
	f.String("log-level", "info", "debug, info, warn or error")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address")
	f.String("redis-addr", "", "publish task events to this Redis server")
	f.String("redis-password", "", "password of the Redis server")
	f.String("redis-stream", "", "Redis stream for task events (default stq:{<queue dir name>}:events)")
	f.Int64("redis-maxlen", 10000, "approximate cap of the event stream, 0 for unlimited")
	return cmd
}

// loadConfig layers flags over STQ_* environment variables over an optional
// stq.yaml in the queue root or the current directory.
func loadConfig(v *viper.Viper, cmd *cobra.Command, root string) error {
	v.SetEnvPrefix("STQ")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	v.SetConfigName("stq")
	v.SetConfigType("yaml")
	v.AddConfigPath(root)
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func expandPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return filepath.Abs(p)
}

func addTask(ctx context.Context, out io.Writer, root string, v *viper.Viper, log simpletq.Logger, pub simpletq.Publisher) error {
	cli, err := simpletq.NewClient(root, simpletq.WithClientLogger(log), simpletq.WithClientPublisher(pub))
	if err != nil {
		return err
	}
	var opts []simpletq.Option
	if name := v.GetString("task-name"); name != "" {
		opts = append(opts, simpletq.TaskName(name))
	}
	if dir := v.GetString("working-dir"); dir != "" {
		opts = append(opts, simpletq.WorkingDir(dir))
	}
	name, err := cli.Submit(ctx, v.GetString("add-task"), opts...)
	if err != nil {
		return err
	}
	log.Debugf("queued %s", name)
	fmt.Fprintln(out, name)
	return nil
}

func printStatus(out io.Writer, root string, log simpletq.Logger) error {
	cli, err := simpletq.NewClient(root, simpletq.WithClientLogger(log))
	if err != nil {
		return err
	}
	header := color.New(color.Bold).SprintFunc()
	for _, st := range simpletq.AllStates {
		tasks, err := cli.ListTasks(st, nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s (%d)\n", header(st.String()), len(tasks))
		for _, t := range tasks {
			fmt.Fprintf(out, "  %s  %s\n", t.ModTime.Format(time.RFC3339), t.Name)
		}
	}
	return nil
}

func runWorker(ctx context.Context, console io.Writer, root string, v *viper.Viper, log simpletq.Logger, pub simpletq.Publisher) error {
	metricsAddr := v.GetString("metrics-addr")
	w, err := simpletq.NewWorker(simpletq.WorkerConfig{
		Root:         root,
		PollInterval: v.GetDuration("poll-interval"),
		RacePause:    v.GetDuration("race-pause"),
		Console:      console,
		Logger:       log,
		Publisher:    pub,
		Metrics:      metricsAddr != "",
	})
	if err != nil {
		return err
	}
	w.Use(loggingMiddleware(log))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var g errgroup.Group
	g.Go(func() error {
		defer cancel()
		return w.Run(ctx)
	})
	g.Go(func() error {
		if err := w.ServeMetrics(ctx, metricsAddr); err != nil {
			log.Errorf("metrics server: %v", err)
		}
		return nil
	})
	return g.Wait()
}
