package gdbmi

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/sortwatch/internal/debugger"
	"github.com/Iron-Ham/sortwatch/internal/errors"
	"github.com/Iron-Ham/sortwatch/internal/logging"
)

// DefaultMinVersion is the oldest GDB whose breakpoint actions may toggle
// other breakpoints and resume.
const DefaultMinVersion = "8.2"

// exitTimeout bounds how long Close waits for -gdb-exit.
const exitTimeout = 2 * time.Second

// Config describes how to launch GDB.
type Config struct {
	Path        string
	Args        []string
	Program     string
	ProgramArgs []string
	MinVersion  string
	// InferiorOutput receives the traced program's terminal output. Nil
	// discards it.
	InferiorOutput io.Writer
	Logger         *logging.Logger
}

// Client is a GDB/MI session. Every method except Close must be called from
// a single goroutine, the debugger goroutine.
type Client struct {
	logger *logging.Logger
	in     io.WriteCloser
	cmd    *exec.Cmd
	ptmx   *os.File
	tty    *os.File
	wg     conc.WaitGroup

	mu        sync.Mutex
	nextToken int
	pending   map[int]chan Record
	console   strings.Builder
	exited    bool

	stops chan Record
	done  chan struct{}

	caps     debugger.Capabilities
	actions  map[debugger.BreakpointID]debugger.Action
	finish   map[debugger.BreakpointID]debugger.Action
	selected int
	started  bool
}

// Start launches GDB on cfg.Program, gives the program its own terminal and
// checks the GDB version.
func Start(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Path == "" {
		cfg.Path = "gdb"
	}
	if cfg.MinVersion == "" {
		cfg.MinVersion = DefaultMinVersion
	}
	if cfg.InferiorOutput == nil {
		cfg.InferiorOutput = io.Discard
	}

	args := append([]string{"--interpreter=mi3", "--quiet", "--nx"}, cfg.Args...)
	if cfg.Program != "" {
		args = append(args, "--args", cfg.Program)
		args = append(args, cfg.ProgramArgs...)
	}
	cmd := exec.CommandContext(ctx, cfg.Path, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, errors.NewDebuggerError("failed to start gdb", err).WithCommand(cfg.Path)
	}

	c := newClient(stdin, stdout, cfg.Logger)
	c.cmd = cmd

	if err := c.setup(ctx, cfg); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func newClient(w io.WriteCloser, r io.Reader, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.NopLogger()
	}
	c := &Client{
		logger:  logger.With("component", "gdbmi"),
		in:      w,
		pending: make(map[int]chan Record),
		stops:   make(chan Record, 16),
		done:    make(chan struct{}),
		actions: make(map[debugger.BreakpointID]debugger.Action),
		finish:  make(map[debugger.BreakpointID]debugger.Action),
	}
	c.wg.Go(func() { c.readLoop(r) })
	return c
}

func (c *Client) setup(ctx context.Context, cfg Config) error {
	if err := c.detectVersion(ctx, cfg.MinVersion); err != nil {
		return err
	}
	if _, err := c.command(ctx, "-gdb-set pagination off"); err != nil {
		return err
	}

	ptmx, tty, err := pty.Open()
	if err != nil {
		c.logger.Warn("no terminal for the traced program, its output will mix with gdb's", "error", err.Error())
		return nil
	}
	c.ptmx, c.tty = ptmx, tty
	if _, err := c.command(ctx, "-inferior-tty-set "+tty.Name()); err != nil {
		return err
	}
	// Not joined by Close: a read blocked on the pty master may outlive it.
	go func() { _, _ = io.Copy(cfg.InferiorOutput, ptmx) }()
	return nil
}

var versionRe = regexp.MustCompile(`(\d+)\.(\d+)`)

func (c *Client) detectVersion(ctx context.Context, minVersion string) error {
	if _, err := c.command(ctx, "-gdb-version"); err != nil {
		return err
	}
	line, _, _ := strings.Cut(c.consoleText(), "\n")
	matches := versionRe.FindAllString(line, -1)
	version := "unknown"
	if len(matches) > 0 {
		version = matches[len(matches)-1]
	}
	c.caps = debugger.Capabilities{
		Name:           "gdb",
		Version:        version,
		MutableActions: versionAtLeast(version, minVersion),
	}
	c.logger.Info("gdb detected", "version", version, "mutable_actions", c.caps.MutableActions)
	return nil
}

// versionAtLeast compares "major.minor" strings. Unparseable versions never
// qualify.
func versionAtLeast(version, minVersion string) bool {
	parse := func(s string) (int, int, bool) {
		m := versionRe.FindStringSubmatch(s)
		if m == nil {
			return 0, 0, false
		}
		major, _ := strconv.Atoi(m[1])
		minor, _ := strconv.Atoi(m[2])
		return major, minor, true
	}
	vMajor, vMinor, ok := parse(version)
	if !ok {
		return false
	}
	mMajor, mMinor, ok := parse(minVersion)
	if !ok {
		return true
	}
	if vMajor != mMajor {
		return vMajor > mMajor
	}
	return vMinor >= mMinor
}

func (c *Client) readLoop(r io.Reader) {
	defer func() {
		c.mu.Lock()
		c.exited = true
		c.mu.Unlock()
		close(c.done)
	}()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		rec, err := Parse(line)
		if err != nil {
			c.logger.Warn("unparseable mi output", "line", line, "error", err.Error())
			continue
		}
		switch rec.Kind {
		case KindResult:
			c.mu.Lock()
			ch, ok := c.pending[rec.Token]
			delete(c.pending, rec.Token)
			c.mu.Unlock()
			if ok {
				ch <- rec
			}
		case KindExec:
			if rec.Class != "stopped" {
				continue
			}
			select {
			case c.stops <- rec:
			default:
				c.logger.Warn("dropping stop nobody waits for", "reason", rec.Results.Field("reason"))
			}
		case KindConsole:
			c.mu.Lock()
			c.console.WriteString(rec.Text)
			c.mu.Unlock()
		case KindTarget, KindLog:
			c.logger.Debug("gdb output", "text", strings.TrimSpace(rec.Text))
		case KindNotify, KindStatus:
			c.logger.Debug("gdb notification", "class", rec.Class)
		}
	}
	if err := scanner.Err(); err != nil {
		c.logger.Warn("gdb output closed", "error", err.Error())
	}
}

func (c *Client) consoleText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.console.String()
}

// command sends one MI command and waits for its result record.
func (c *Client) command(ctx context.Context, text string) (Tuple, error) {
	c.mu.Lock()
	if c.exited {
		c.mu.Unlock()
		return nil, errors.NewDebuggerError("gdb is not running", errors.ErrDebuggerExited).WithCommand(text)
	}
	c.nextToken++
	token := c.nextToken
	ch := make(chan Record, 1)
	c.pending[token] = ch
	c.console.Reset()
	c.mu.Unlock()

	c.logger.Debug("mi command", "token", token, "command", text)
	if _, err := fmt.Fprintf(c.in, "%d%s\n", token, text); err != nil {
		c.forget(token)
		return nil, errors.NewDebuggerError("failed to write command", err).WithCommand(text)
	}

	select {
	case rec := <-ch:
		if rec.Class == "error" {
			return nil, errors.NewDebuggerError(rec.Results.Field("msg"), nil).WithCommand(text)
		}
		return rec.Results, nil
	case <-c.done:
		return nil, errors.NewDebuggerError("gdb exited", errors.ErrDebuggerExited).WithCommand(text)
	case <-ctx.Done():
		c.forget(token)
		return nil, ctx.Err()
	}
}

func (c *Client) forget(token int) {
	c.mu.Lock()
	delete(c.pending, token)
	c.mu.Unlock()
}

func (c *Client) waitStop(ctx context.Context) (Record, error) {
	select {
	case rec := <-c.stops:
		c.selected = 0
		return rec, nil
	case <-c.done:
		return Record{}, errors.NewDebuggerError("gdb exited while the program was running", errors.ErrDebuggerExited)
	case <-ctx.Done():
		return Record{}, ctx.Err()
	}
}

// Capabilities implements debugger.Session.
func (c *Client) Capabilities() debugger.Capabilities {
	return c.caps
}

func (c *Client) insert(ctx context.Context, args string) (debugger.BreakpointID, error) {
	res, err := c.command(ctx, "-break-insert "+args)
	if err != nil {
		return 0, err
	}
	number := res.Nested("bkpt").Field("number")
	id, err := strconv.Atoi(number)
	if err != nil {
		return 0, errors.NewDebuggerError("unexpected breakpoint number", err).
			WithCommand("-break-insert " + args).WithOutput(number)
	}
	return debugger.BreakpointID(id), nil
}

// PlaceBreakpoint implements debugger.Session.
func (c *Client) PlaceBreakpoint(ctx context.Context, symbol string) (debugger.BreakpointID, error) {
	return c.insert(ctx, Quote(symbol))
}

// PlaceBreakpointAt implements debugger.Session.
func (c *Client) PlaceBreakpointAt(ctx context.Context, addr uint64) (debugger.BreakpointID, error) {
	return c.insert(ctx, fmt.Sprintf("*0x%x", addr))
}

// RemoveBreakpoint implements debugger.Session.
func (c *Client) RemoveBreakpoint(ctx context.Context, id debugger.BreakpointID) error {
	delete(c.actions, id)
	delete(c.finish, id)
	_, err := c.command(ctx, fmt.Sprintf("-break-delete %d", id))
	return err
}

// SetEnabled implements debugger.Session.
func (c *Client) SetEnabled(ctx context.Context, id debugger.BreakpointID, enabled bool) error {
	verb := "-break-disable"
	if enabled {
		verb = "-break-enable"
	}
	_, err := c.command(ctx, fmt.Sprintf("%s %d", verb, id))
	return err
}

// OnHit implements debugger.Session.
func (c *Client) OnHit(id debugger.BreakpointID, action debugger.Action) {
	c.actions[id] = action
}

// FinishOnReturn places a temporary breakpoint on the return address of the
// selected frame, conditioned on the stack pointer so that returns of deeper
// recursive calls to the same site do not trigger it.
func (c *Client) FinishOnReturn(ctx context.Context, action debugger.Action) error {
	sp, err := c.ReadAddress(ctx, "$sp")
	if err != nil {
		return err
	}
	res, err := c.command(ctx, fmt.Sprintf("-stack-list-frames %d %d", c.selected+1, c.selected+1))
	if err != nil {
		return err
	}
	frames := res.List("stack")
	if len(frames) == 0 {
		return errors.NewDebuggerError(`"finish" not meaningful in the outermost frame.`, nil)
	}
	caller, _ := frames[0].(Tuple)
	ret := caller.Field("addr")
	if ret == "" {
		return errors.NewDebuggerError("caller frame has no address", nil)
	}

	cond := Quote(fmt.Sprintf("$sp > 0x%x", sp))
	id, err := c.insert(ctx, fmt.Sprintf("-t -c %s *%s", cond, ret))
	if err != nil {
		return err
	}
	c.finish[id] = action
	return nil
}

var hexRe = regexp.MustCompile(`0x[0-9a-fA-F]+`)

// ReadAddress implements debugger.Session. Pointer values print as
// "(T *) 0x..." and plain integers as decimals; both are accepted.
func (c *Client) ReadAddress(ctx context.Context, expr string) (uint64, error) {
	res, err := c.command(ctx, "-data-evaluate-expression "+Quote(expr))
	if err != nil {
		return 0, err
	}
	return parseAddress(res.Field("value"))
}

func parseAddress(value string) (uint64, error) {
	if all := hexRe.FindAllString(value, -1); len(all) > 0 {
		return strconv.ParseUint(all[len(all)-1][2:], 16, 64)
	}
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 0, errors.NewDebuggerError("empty value", nil)
	}
	n, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, errors.NewDebuggerError("value is not an address", err).WithOutput(value)
	}
	return uint64(n), nil
}

// ReadWord implements debugger.Session. Memory is read as little-endian.
func (c *Client) ReadWord(ctx context.Context, addr uint64, size int) (int64, error) {
	command := fmt.Sprintf("-data-read-memory-bytes 0x%x %d", addr, size)
	res, err := c.command(ctx, command)
	if err != nil {
		return 0, err
	}
	blocks := res.List("memory")
	if len(blocks) == 0 {
		return 0, errors.NewDebuggerError("no memory returned", nil).WithCommand(command)
	}
	block, _ := blocks[0].(Tuple)
	raw, err := hex.DecodeString(block.Field("contents"))
	if err != nil || len(raw) < size {
		return 0, errors.NewDebuggerError("short memory read", err).WithCommand(command)
	}
	return decodeWord(raw, size)
}

func decodeWord(raw []byte, size int) (int64, error) {
	switch size {
	case 1:
		return int64(int8(raw[0])), nil
	case 2:
		return int64(int16(binary.LittleEndian.Uint16(raw))), nil
	case 4:
		return int64(int32(binary.LittleEndian.Uint32(raw))), nil
	case 8:
		return int64(binary.LittleEndian.Uint64(raw)), nil
	default:
		return 0, errors.NewValidationError("unsupported word size").WithValue(size)
	}
}

// SelectOlderFrame implements debugger.Session.
func (c *Client) SelectOlderFrame(ctx context.Context) error {
	if _, err := c.command(ctx, fmt.Sprintf("-stack-select-frame %d", c.selected+1)); err != nil {
		return err
	}
	c.selected++
	return nil
}

// FrameFunction implements debugger.Session.
func (c *Client) FrameFunction(ctx context.Context) (string, error) {
	res, err := c.command(ctx, "-stack-info-frame")
	if err != nil {
		return "", err
	}
	fn := res.Nested("frame").Field("func")
	if fn == "??" {
		return "", nil
	}
	return fn, nil
}

// FrameRange implements debugger.Session.
func (c *Client) FrameRange(ctx context.Context) (uint64, uint64, error) {
	res, err := c.command(ctx, "-stack-info-frame")
	if err != nil {
		return 0, 0, err
	}
	pc := res.Nested("frame").Field("addr")
	if pc == "" {
		return 0, 0, errors.NewDebuggerError("selected frame has no address", nil)
	}
	insns, err := c.disassemble(ctx, fmt.Sprintf("-data-disassemble -a %s -- 0", pc))
	if err != nil {
		return 0, 0, err
	}
	if len(insns) == 0 {
		return 0, 0, errors.NewDebuggerError("no code around pc", nil).WithOutput(pc)
	}
	return insns[0].Addr, insns[len(insns)-1].Addr + 1, nil
}

// Disassemble implements debugger.Session.
func (c *Client) Disassemble(ctx context.Context, lo, hi uint64) ([]debugger.Instruction, error) {
	return c.disassemble(ctx, fmt.Sprintf("-data-disassemble -s 0x%x -e 0x%x -- 0", lo, hi))
}

func (c *Client) disassemble(ctx context.Context, command string) ([]debugger.Instruction, error) {
	res, err := c.command(ctx, command)
	if err != nil {
		return nil, err
	}
	var out []debugger.Instruction
	for _, item := range res.List("asm_insns") {
		t, ok := item.(Tuple)
		if !ok {
			continue
		}
		addr, err := parseAddress(t.Field("address"))
		if err != nil {
			return nil, err
		}
		out = append(out, debugger.Instruction{Addr: addr, Asm: t.Field("inst")})
	}
	return out, nil
}

// StepInstruction steps one instruction, over calls, and returns the new pc.
func (c *Client) StepInstruction(ctx context.Context) (uint64, error) {
	return c.step(ctx, "-exec-next-instruction")
}

// StepInto implements debugger.Session.
func (c *Client) StepInto(ctx context.Context) (uint64, error) {
	return c.step(ctx, "-exec-step-instruction")
}

func (c *Client) step(ctx context.Context, command string) (uint64, error) {
	if _, err := c.command(ctx, command); err != nil {
		return 0, err
	}
	rec, err := c.waitStop(ctx)
	if err != nil {
		return 0, err
	}
	if strings.HasPrefix(rec.Results.Field("reason"), "exited") {
		return 0, errors.NewDebuggerError("the program exited", errors.ErrDebuggerExited)
	}
	return parseAddress(rec.Results.Nested("frame").Field("addr"))
}

// Run implements debugger.Session.
func (c *Client) Run(ctx context.Context) (debugger.Stop, error) {
	command := "-exec-continue"
	if !c.started {
		command = "-exec-run"
		c.started = true
	}
	for {
		if _, err := c.command(ctx, command); err != nil {
			return debugger.Stop{}, err
		}
		command = "-exec-continue"

		rec, err := c.waitStop(ctx)
		if err != nil {
			return debugger.Stop{}, err
		}
		stop, actions := c.classify(rec)
		if stop.Reason == debugger.StopExited || len(actions) == 0 {
			return stop, nil
		}

		resume := true
		for _, action := range actions {
			ok, err := action(ctx)
			if err != nil {
				return stop, err
			}
			resume = resume && ok
		}
		if !resume {
			return stop, nil
		}
	}
}

func (c *Client) classify(rec Record) (debugger.Stop, []debugger.Action) {
	res := rec.Results
	pc, _ := parseAddress(res.Nested("frame").Field("addr"))
	stop := debugger.Stop{Reason: debugger.StopHalted, PC: pc}

	switch reason := res.Field("reason"); reason {
	case "exited-normally":
		return debugger.Stop{Reason: debugger.StopExited}, nil
	case "exited":
		code, _ := strconv.ParseInt(res.Field("exit-code"), 8, 32)
		return debugger.Stop{Reason: debugger.StopExited, ExitCode: int(code)}, nil
	case "exited-signalled":
		return debugger.Stop{Reason: debugger.StopExited, ExitCode: -1}, nil
	case "breakpoint-hit":
		n, err := strconv.Atoi(res.Field("bkptno"))
		if err != nil {
			return stop, nil
		}
		id := debugger.BreakpointID(n)
		if action, ok := c.finish[id]; ok {
			delete(c.finish, id)
			return stop, []debugger.Action{action}
		}
		if action, ok := c.actions[id]; ok {
			return stop, []debugger.Action{action}
		}
		return stop, nil
	default:
		c.logger.Debug("program stopped", "reason", reason)
		return stop, nil
	}
}

// Close asks GDB to exit and releases the process and terminal.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), exitTimeout)
	defer cancel()
	_, _ = c.command(ctx, "-gdb-exit")
	_ = c.in.Close()

	var err error
	if c.cmd != nil {
		select {
		case <-c.done:
		case <-ctx.Done():
			_ = c.cmd.Process.Kill()
		}
		err = c.cmd.Wait()
	}
	if c.tty != nil {
		_ = c.tty.Close()
	}
	if c.ptmx != nil {
		_ = c.ptmx.Close()
	}
	c.wg.Wait()
	return err
}
