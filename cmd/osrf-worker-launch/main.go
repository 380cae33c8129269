// Command osrf-worker-launch is the start/stop/restart process launcher
// of spec §6: it starts, stops, or restarts one or all service
// controllers, tracking each by a pid file under -p. It does not itself
// speak the bus protocol; it manages osrf-controller as a child process,
// following the teacher's cmd/server/main.go flag-parsing idiom.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/opensrf-project/opensrf-go/internal/config"
)

const usage = `usage: osrf-worker-launch -a <action> -s <service> -f <config> [options]

  -a  start|stop|restart|start_all|stop_all|restart_all (required)
  -s  service name (required unless -a ends in _all)
  -f  bootstrap config file (required)
  -c  bootstrap config context (default config.opensrf)
  -p  pid directory (default /tmp)
  -d  daemonize the controller
  -l  bind the controller to a localhost-only domain override
  -h  show this help
`

func main() {
	var (
		action        = flag.String("a", "", "start|stop|restart|start_all|stop_all|restart_all")
		service       = flag.String("s", "", "service name")
		configFile    = flag.String("f", "", "bootstrap config file")
		contextName   = flag.String("c", "config.opensrf", "bootstrap config context")
		pidDir        = flag.String("p", "/tmp", "pid file directory")
		daemonize     = flag.Bool("d", false, "daemonize the controller process")
		localhost     = flag.Bool("l", false, "bind the controller to localhost only")
		help          = flag.Bool("h", false, "show usage")
		controllerBin = flag.String("controller-bin", "", "path to osrf-controller (default: sibling of this binary)")
	)
	flag.Parse()

	if *help {
		fmt.Fprint(os.Stdout, usage)
		os.Exit(0)
	}
	if *action == "" || *configFile == "" {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	all := strings.HasSuffix(*action, "_all")
	if !all && *service == "" {
		fmt.Fprintln(os.Stderr, "osrf-worker-launch: -s is required unless -a is a _all action")
		os.Exit(2)
	}

	bin := *controllerBin
	if bin == "" {
		exe, err := os.Executable()
		if err != nil {
			fmt.Fprintf(os.Stderr, "osrf-worker-launch: resolve own executable: %v\n", err)
			os.Exit(1)
		}
		bin = filepath.Join(filepath.Dir(exe), "osrf-controller")
	}

	l := &launcher{
		controllerBin: bin,
		configFile:    *configFile,
		contextName:   *contextName,
		pidDir:        *pidDir,
		daemonize:     *daemonize,
		localhost:     *localhost,
	}

	services := []string{*service}
	if all {
		var err error
		services, err = l.discoverServices()
		if err != nil {
			fmt.Fprintf(os.Stderr, "osrf-worker-launch: %v\n", err)
			os.Exit(1)
		}
	}

	verb := strings.TrimSuffix(*action, "_all")
	var run func(string) error
	switch verb {
	case "start":
		run = l.start
	case "stop":
		run = l.stop
	case "restart":
		run = l.restart
	default:
		fmt.Fprintf(os.Stderr, "osrf-worker-launch: unknown action %q\n", *action)
		os.Exit(2)
	}

	failed := false
	for _, svc := range services {
		if err := run(svc); err != nil {
			fmt.Fprintf(os.Stderr, "osrf-worker-launch: %s %s: %v\n", verb, svc, err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

type launcher struct {
	controllerBin string
	configFile    string
	contextName   string
	pidDir        string
	daemonize     bool
	localhost     bool
}

func (l *launcher) pidFile(service string) string {
	return filepath.Join(l.pidDir, service+".pid")
}

// start spawns osrf-controller for service and records its pid (spec §6
// "PID file path: <pid_dir>/<service>.pid").
func (l *launcher) start(service string) error {
	if pid, ok := l.readPID(service); ok && processAlive(pid) {
		return fmt.Errorf("already running as pid %d", pid)
	}

	args := []string{"-f", l.configFile, "-c", l.contextName, "-s", service}
	cmd := exec.Command(l.controllerBin, args...)
	if l.localhost {
		cmd.Env = append(os.Environ(), "OPENSRF_DOMAIN_OVERRIDE=localhost")
	}
	if l.daemonize {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
		devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		if err != nil {
			return err
		}
		defer devnull.Close()
		cmd.Stdin = devnull
		cmd.Stdout = devnull
		cmd.Stderr = devnull
	} else {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start controller: %w", err)
	}
	if err := os.MkdirAll(l.pidDir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(l.pidFile(service), []byte(strconv.Itoa(cmd.Process.Pid)), 0o644); err != nil {
		return err
	}
	if l.daemonize {
		go cmd.Wait() // reap when it eventually exits; launcher doesn't block on it
	}
	return nil
}

// stop sends SIGTERM to service's recorded pid and removes its pid file.
func (l *launcher) stop(service string) error {
	pid, ok := l.readPID(service)
	if !ok {
		return fmt.Errorf("no pid file at %s", l.pidFile(service))
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil && !strings.Contains(err.Error(), "process already finished") {
		return err
	}
	return os.Remove(l.pidFile(service))
}

func (l *launcher) restart(service string) error {
	if err := l.stop(service); err != nil {
		fmt.Fprintf(os.Stderr, "osrf-worker-launch: stop %s during restart: %v\n", service, err)
	}
	return l.start(service)
}

func (l *launcher) readPID(service string) (int, bool) {
	data, err := os.ReadFile(l.pidFile(service))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return pid, true
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// discoverServices lists every service named under the bootstrap config's
// routers.router.services.service entries (spec §6's router discovery),
// used for the _all actions since no settings service is assumed reachable.
func (l *launcher) discoverServices() ([]string, error) {
	data, err := os.ReadFile(l.configFile)
	if err != nil {
		return nil, err
	}
	root, err := config.ParseBootstrap(data)
	if err != nil {
		return nil, err
	}
	boot, err := config.ResolveBootstrap(root, l.contextName)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, r := range boot.Routers {
		for _, svc := range r.Services {
			if !seen[svc] {
				seen[svc] = true
				out = append(out, svc)
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no services found under routers.router.services in %s", l.configFile)
	}
	return out, nil
}
