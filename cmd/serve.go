package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/ka/internal/api"
	"github.com/joescharf/ka/internal/daemon"
	"github.com/joescharf/ka/internal/sessions"
	"github.com/joescharf/ka/internal/web"
)

const (
	shutdownTimeout = 10 * time.Second
	stopGrace       = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP session API and web client",
	Long: `Start an HTTP server exposing the session API under /api/v1 and the
embedded web client at /. By default it listens on port 8080.

Use 'ka serve start' to run it in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun(cmd.Context())
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.PersistentFlags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("serve.port", serveCmd.PersistentFlags().Lookup("port"))

	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "ka-serve.pid"))
}

func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "ka-serve.log")
}

// newServeHandler assembles the API and the web client on one mux.
func newServeHandler(srv *api.Server) (http.Handler, error) {
	webHandler, err := web.Handler()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize web handler: %w", err)
	}

	mux := http.NewServeMux()
	srv.Register(mux)
	mux.Handle("/", webHandler)
	return api.CORS(mux), nil
}

func serveRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	pf := pidFile()
	if st := pf.Status(); st.Running && st.PID != os.Getpid() {
		return fmt.Errorf("server already running (pid %d)", st.PID)
	}

	log, err := getLogger()
	if err != nil {
		return err
	}
	mode, err := defaultMode()
	if err != nil {
		return err
	}
	client, err := searchClientFunc(log)
	if err != nil {
		return err
	}
	st, err := getStore()
	if err != nil {
		return err
	}

	mgr := sessions.NewManager(sessions.Config{
		Client:      client,
		Recorder:    st,
		Logger:      log,
		DefaultMode: mode,
		TTL:         viper.GetDuration("serve.session_ttl"),
	})
	handler, err := newServeHandler(api.NewServer(mgr, st, log, buildVersion))
	if err != nil {
		return err
	}

	addr := net.JoinHostPort("", strconv.Itoa(viper.GetInt("serve.port")))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	if err := pf.Write(); err != nil {
		_ = ln.Close()
		return fmt.Errorf("write PID file: %w", err)
	}
	defer func() { _ = pf.Remove() }()

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()

	server := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(ln) }()

	ui.Info("Serving ka at http://localhost%s", addr)
	log.Info("server started", "addr", addr, "pid", os.Getpid())

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// serveStartRun re-executes the binary as `ka serve` detached from the
// terminal, with output appended to the serve log.
func serveStartRun() error {
	pf := pidFile()
	if st := pf.Status(); st.Running {
		return fmt.Errorf("server already running (pid %d)", st.PID)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	logPath := serveLogPath()
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open serve log: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	args := []string{"serve", "--port", strconv.Itoa(viper.GetInt("serve.port"))}
	if cfg := viper.ConfigFileUsed(); cfg != "" {
		args = append(args, "--config", cfg)
	}

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)
	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	pid := child.Process.Pid
	if err := pf.WritePID(pid); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	_ = child.Process.Release()

	ui.Success("Server started (pid %d) on port %d", pid, viper.GetInt("serve.port"))
	ui.Info("Logs: %s", logPath)
	return nil
}

func serveStopRun() error {
	pf := pidFile()
	st := pf.Status()
	if err := pf.Stop(stopGrace); err != nil {
		return err
	}
	ui.Success("Server stopped (pid %d)", st.PID)
	return nil
}

func serveStatusRun() error {
	st := pidFile().Status()
	switch {
	case st.Running:
		ui.Success("Server running (pid %d)", st.PID)
		ui.Info("Logs: %s", serveLogPath())
	case st.Stale:
		ui.Warning("Server not running (stale PID file for pid %d)", st.PID)
	default:
		ui.Info("Server not running")
	}
	return nil
}
