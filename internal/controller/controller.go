package controller

import (
	"context"
	"net"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/opensrf-project/opensrf-go/internal/domain/transport"
	"github.com/opensrf-project/opensrf-go/internal/obslog"
	"github.com/opensrf-project/opensrf-go/internal/worker"
)

// Spec configures one service's drone pool (spec §6 unix_config block:
// min_children/max_children/max_requests; keepalive governs how long a
// CONNECTED worker may idle between requests).
type Spec struct {
	Service     string
	RouterJID   string // recipient for router_command register/unregister
	WorkerBin   string // re-exec target, normally os.Executable()
	WorkerArgs  []string
	MinChildren int
	MaxChildren int
	MaxRequests int
	Keepalive   time.Duration
}

// child tracks one drone process and its half of the socketpairs the
// controller dialed it with.
type child struct {
	pid        int
	cmd        *exec.Cmd
	data       net.Conn
	statusFile *os.File
}

// Controller is the per-service supervisor of spec §4.5. Where the
// original forks a child directly, this redesign re-execs the current
// binary into a worker subcommand and hands it its data/status sockets
// over ExtraFiles (spec §9's explicit sanction for replacing fork()).
type Controller struct {
	spec Spec
	tr   transport.Transport
	log  *obslog.Logger

	mu     sync.Mutex
	idle   []*child
	active map[int]*child

	retireCh chan int
	freeCh   chan int
}

// New builds a Controller around an already-connected bus transport.
func New(spec Spec, tr transport.Transport, log *obslog.Logger) *Controller {
	return &Controller{
		spec:     spec,
		tr:       tr,
		log:      log,
		active:   make(map[int]*child),
		retireCh: make(chan int, 64),
		freeCh:   make(chan int, 64),
	}
}

// spawnWorker starts one drone child over a fresh pair of unix socketpairs:
// fd 3 carries framed NetworkMessage envelopes, fd 4 is the status pipe the
// child reports its pid on after each request cycle as a ready ack; the
// pipe closing when the child exits marks its retirement (spec §4.6).
func (c *Controller) spawnWorker() (*child, error) {
	dataFDs, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		return nil, errors.Wrap(err, "controller: data socketpair")
	}
	statusFDs, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		return nil, errors.Wrap(err, "controller: status socketpair")
	}

	parentData := os.NewFile(uintptr(dataFDs[0]), "opensrf-data-parent")
	childData := os.NewFile(uintptr(dataFDs[1]), "opensrf-data-child")
	parentStatus := os.NewFile(uintptr(statusFDs[0]), "opensrf-status-parent")
	childStatus := os.NewFile(uintptr(statusFDs[1]), "opensrf-status-child")

	cmd := exec.Command(c.spec.WorkerBin, c.spec.WorkerArgs...)
	cmd.ExtraFiles = []*os.File{childData, childStatus}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		_ = parentData.Close()
		_ = childData.Close()
		_ = parentStatus.Close()
		_ = childStatus.Close()
		return nil, errors.Wrap(err, "controller: start worker")
	}
	_ = childData.Close()
	_ = childStatus.Close()

	dataConn, err := net.FileConn(parentData)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, errors.Wrap(err, "controller: adopt data socket")
	}
	_ = parentData.Close() // FileConn dup'd the descriptor

	ch := &child{pid: cmd.Process.Pid, cmd: cmd, data: dataConn, statusFile: parentStatus}
	workersSpawned.WithLabelValues(c.spec.Service).Inc()
	go c.watchStatus(ch)
	return ch, nil
}

// watchStatus reads ready acks off ch's status pipe for as long as the
// child is alive: one ack per request cycle the worker finishes (spec
// §4.6), each meaning the child is free again and belongs back in the
// idle pool, not merely that the write handed it work succeeded. The
// pipe closing (read error) means the child has served max_requests and
// exited cleanly (spec §4.6 step 5), so that's reported as a retirement
// instead.
func (c *Controller) watchStatus(ch *child) {
	for {
		pid, err := worker.ReadPID(ch.statusFile)
		if err != nil {
			if c.log != nil {
				c.log.Warnf("controller: status pipe for pid %d closed: %v", ch.pid, err)
			}
			c.retireCh <- ch.pid
			return
		}
		if pid != ch.pid {
			if c.log != nil {
				c.log.Warnf("controller: status pipe pid mismatch: got %d want %d", pid, ch.pid)
			}
		}
		c.freeCh <- ch.pid
	}
}

// reap removes a retiring/dead child from the active/idle pools and
// waits on its process to avoid leaving a zombie.
func (c *Controller) reap(pid int, reason string) {
	c.mu.Lock()
	ch, ok := c.active[pid]
	if ok {
		delete(c.active, pid)
	} else {
		for i, idleCh := range c.idle {
			if idleCh.pid == pid {
				ch = idleCh
				c.idle = append(c.idle[:i], c.idle[i+1:]...)
				break
			}
		}
	}
	c.mu.Unlock()
	if ch == nil {
		return
	}
	_ = ch.data.Close()
	_ = ch.statusFile.Close()
	_, _ = ch.cmd.Process.Wait()
	workersRetired.WithLabelValues(c.spec.Service, reason).Inc()
	c.updateGauges()
}

func (c *Controller) updateGauges() {
	c.mu.Lock()
	idle := len(c.idle)
	active := len(c.active)
	c.mu.Unlock()
	idleWorkers.WithLabelValues(c.spec.Service).Set(float64(idle))
	activeWorkers.WithLabelValues(c.spec.Service).Set(float64(active))
}

// acquireWorker returns an idle child, spawning one if the pool has room
// and none is idle, or waiting for one to either retire or report itself
// free once the pool is at max_children. Its own blocking wait has to
// drain freeCh directly rather than leave that to Run's outer select:
// Run calls acquireWorker synchronously from its single dispatch
// goroutine, so nothing else would ever move a child active->idle while
// acquireWorker is parked here.
func (c *Controller) acquireWorker() (*child, error) {
	for {
		c.mu.Lock()
		if n := len(c.idle); n > 0 {
			ch := c.idle[n-1]
			c.idle = c.idle[:n-1]
			c.active[ch.pid] = ch
			c.mu.Unlock()
			c.updateGauges()
			return ch, nil
		}
		total := len(c.active) + len(c.idle)
		room := c.spec.MaxChildren <= 0 || total < c.spec.MaxChildren
		c.mu.Unlock()

		if room {
			ch, err := c.spawnWorker()
			if err != nil {
				return nil, err
			}
			c.mu.Lock()
			c.active[ch.pid] = ch
			c.mu.Unlock()
			c.updateGauges()
			return ch, nil
		}

		select {
		case pid := <-c.retireCh:
			c.reap(pid, "max_requests")
		case pid := <-c.freeCh:
			c.markIdle(pid)
		case <-time.After(time.Second):
		}
	}
}

// markIdle moves pid from active back to idle once its worker has
// actually reported itself free over the status pipe (spec §4.5 idle/
// active bookkeeping). A pid with no matching active entry is ignored:
// it may already have been reaped as a retirement race.
func (c *Controller) markIdle(pid int) {
	c.mu.Lock()
	ch, ok := c.active[pid]
	if ok {
		delete(c.active, pid)
		c.idle = append(c.idle, ch)
	}
	c.mu.Unlock()
	if ok {
		c.updateGauges()
	}
}

// PreFork starts min_children idle workers up front (spec §4.5 "the
// controller pre-forks min_children drones before registering with the
// router").
func (c *Controller) PreFork() error {
	for i := 0; i < c.spec.MinChildren; i++ {
		ch, err := c.spawnWorker()
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.idle = append(c.idle, ch)
		c.mu.Unlock()
	}
	c.updateGauges()
	return nil
}

// Register sends a router_command=register NetworkMessage advertising
// this service (spec §4.2 "register" router command).
func (c *Controller) Register(ctx context.Context) error {
	return c.tr.Send(ctx, transport.NetworkMessage{
		Recipient:     c.spec.RouterJID,
		RouterCommand: "register",
		RouterClass:   c.spec.Service,
	})
}

// Unregister withdraws the service from routing, used on graceful
// shutdown (spec §4.2 "unregister" router command).
func (c *Controller) Unregister(ctx context.Context) error {
	return c.tr.Send(ctx, transport.NetworkMessage{
		Recipient:     c.spec.RouterJID,
		RouterCommand: "unregister",
		RouterClass:   c.spec.Service,
	})
}

// Run is the controller main loop (spec §4.5): reap retiring children,
// poll for one NetworkMessage in one-second slices, hand it to an
// idle or freshly spawned worker framed over its data socket. Run
// returns when ctx is cancelled, after unregistering and letting
// in-flight children finish.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.Register(ctx); err != nil {
		return errors.Wrap(err, "controller: register with router")
	}
	defer func() {
		_ = c.Unregister(context.Background())
	}()

	for {
		select {
		case pid := <-c.retireCh:
			c.reap(pid, "max_requests")
			continue
		case pid := <-c.freeCh:
			c.markIdle(pid)
			continue
		case <-ctx.Done():
			return c.drain()
		default:
		}

		nm, err := c.tr.Recv(ctx, time.Second)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return c.drain()
			}
			if c.log != nil {
				c.log.Warnf("controller: recv: %v", err)
			}
			continue
		}
		if nm == nil {
			continue
		}

		ch, err := c.acquireWorker()
		if err != nil {
			if c.log != nil {
				c.log.Errorf("controller: acquire worker: %v", err)
			}
			continue
		}

		payload, err := worker.EncodeEnvelope(*nm)
		if err != nil {
			if c.log != nil {
				c.log.Errorf("controller: encode envelope: %v", err)
			}
			// Nothing was dispatched to ch; it's still free.
			c.markIdle(ch.pid)
			continue
		}
		if err := worker.WriteFrame(ch.data, payload); err != nil {
			if c.log != nil {
				c.log.Errorf("controller: write frame to pid %d: %v", ch.pid, err)
			}
			c.reap(ch.pid, "write_error")
			continue
		}
		requestsDispatched.WithLabelValues(c.spec.Service).Inc()
		// ch stays active until its worker reports itself free over the
		// status pipe (watchStatus -> freeCh), not merely because the
		// write succeeded — the worker may still be mid-CONNECT session.
	}
}

// drain waits briefly for active children to finish their current cycle
// before the process exits, then kills stragglers (spec §4.5 graceful
// shutdown on SIGTERM).
func (c *Controller) drain() error {
	deadline := time.After(10 * time.Second)
	for {
		c.mu.Lock()
		n := len(c.active)
		c.mu.Unlock()
		if n == 0 {
			return nil
		}
		select {
		case pid := <-c.retireCh:
			c.reap(pid, "shutdown")
		case pid := <-c.freeCh:
			c.markIdle(pid)
		case <-deadline:
			c.killAll()
			return nil
		}
	}
}

func (c *Controller) killAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.active {
		_ = ch.cmd.Process.Kill()
	}
	for _, ch := range c.idle {
		_ = ch.cmd.Process.Kill()
	}
}
