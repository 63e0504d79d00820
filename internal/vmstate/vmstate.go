// Package vmstate composes harts, shared physical memory and the device
// framework into a runnable machine and drives the step loop.
//
// Grounded on the teacher's vm.New assembly (smoynes/elsie
// internal/vm/vm.go), whose single-LC-3 New(opts ...OptionFn) is
// generalized to N harts and whose synchronous "poll after every step"
// device model matches this system's §4.7/§5 scheduling rule directly
// (_examples/original_source's vmstate/mod.rs VMState::step).
package vmstate

import (
	"errors"
	"fmt"

	"github.com/smoynes/rv64/internal/addr"
	"github.com/smoynes/rv64/internal/csr"
	"github.com/smoynes/rv64/internal/device"
	"github.com/smoynes/rv64/internal/exec"
	"github.com/smoynes/rv64/internal/loader"
	"github.com/smoynes/rv64/internal/log"
	"github.com/smoynes/rv64/internal/memory"
	"github.com/smoynes/rv64/internal/pmp"
	"github.com/smoynes/rv64/internal/window"
)

// Default physical memory map, per spec.md §6: RAM starts at 0x8000_0000;
// device regions live below it.
const (
	DefaultRAMBase  addr.Address = 0x8000_0000
	DefaultRAMSize               = 128 << 20

	msipBase addr.Address = 0x0200_0000
	mtimeBase addr.Address = 0x0200_4000
	ssipBase addr.Address = 0x0201_0000

	// GraphicsNone and GraphicsVGAText name the --graphics-mode values.
	GraphicsNone    = "none"
	GraphicsVGAText = "vga-text"

	// DefaultVGAAddress is the conventional VGA text-mode MMIO base.
	DefaultVGAAddress addr.Address = 0xB8000
)

// Event bus device IDs for the machine's fixed set of MMIO devices.
const (
	idTimer device.ID = iota + 1
	idMSI
	idSSI
	idVGA
)

// Config is the resolved configuration a VM is built from. Callers normally
// build one via Option functions rather than constructing it directly.
type Config struct {
	HartCount         int
	RAMBase           addr.Address
	RAMSize           int
	Image             *loader.Image
	EnableBreakpoints bool
	GraphicsMode      string
	GraphicsAddress   addr.Address
}

// Option mutates a Config during New, mirroring the teacher's OptionFn
// pattern (smoynes/elsie internal/vm/vm.go's WithSystemContext and
// friends) generalized from a single machine to VM-wide settings.
type Option func(*Config)

// WithHartCount sets the number of harts (default 1).
func WithHartCount(n int) Option {
	return func(c *Config) { c.HartCount = n }
}

// WithRAMSize overrides the default 128 MiB RAM region size.
func WithRAMSize(size int) Option {
	return func(c *Config) { c.RAMSize = size }
}

// WithImage supplies a parsed ELF image to load into RAM at construction.
func WithImage(img *loader.Image) Option {
	return func(c *Config) { c.Image = img }
}

// WithBreakpoints sets Config.EnableBreakpoints. StepHartUntil stops at
// addresses added with AddBreakpoint whether or not this option is given;
// Step and Run do not consult breakpoints.
func WithBreakpoints() Option {
	return func(c *Config) { c.EnableBreakpoints = true }
}

// WithGraphicsMode selects the VGA text device ("vga-text") or disables it
// ("none", the default) and, when enabled, its MMIO base address.
func WithGraphicsMode(mode string, address addr.Address) Option {
	return func(c *Config) {
		c.GraphicsMode = mode
		c.GraphicsAddress = address
	}
}

// VM is a running machine: its harts, the physical memory they share, and
// the devices mapped into that memory.
type VM struct {
	Harts []*exec.Hart
	Mem   *memory.Memory
	Bus   *device.Bus

	Timer *device.Timer
	MSI   *device.SoftwareInterrupt
	SSI   *device.SoftwareInterrupt
	VGA   *VGAText

	breakpoints map[addr.Address]bool
	log         *log.Logger
}

// New assembles a VM: it allocates physical memory, creates one CSR/PMP
// bank and memory window per hart, maps the timer and software-interrupt
// register files, optionally maps a VGA text device, and — if an image was
// supplied — copies its PT_LOAD segments into RAM and starts every hart's
// PC at the image's entry point, per spec.md §6's "every hart starts at
// header.entry" rule.
func New(opts ...Option) (*VM, error) {
	cfg := Config{
		HartCount:    1,
		RAMBase:      DefaultRAMBase,
		RAMSize:      DefaultRAMSize,
		GraphicsMode: GraphicsNone,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.HartCount < 1 {
		return nil, fmt.Errorf("vmstate: hart count must be >= 1, got %d", cfg.HartCount)
	}

	vm := &VM{
		Mem:         memory.New(cfg.RAMBase, cfg.RAMSize),
		Bus:         device.NewBus(),
		breakpoints: make(map[addr.Address]bool),
		log:         log.DefaultLogger().With("component", "vmstate"),
	}

	hartIDs := make([]uint64, cfg.HartCount)
	mip := make([]*csr.InterruptBits, cfg.HartCount)

	for i := range hartIDs {
		hartIDs[i] = uint64(i)
		mip[i] = &csr.InterruptBits{}
	}

	vm.Timer = device.NewTimer(hartIDs, mip)
	vm.MSI = device.NewSoftwareInterrupt(csr.InterruptMachineSoftware, mip)
	vm.SSI = device.NewSoftwareInterrupt(csr.InterruptSupervisorSoftware, mip)

	if err := vm.Mem.MapDevice(addr.Range{Start: mtimeBase, End: mtimeBase.Add(8 * int64(cfg.HartCount+1))},
		vm.wrapEvents(idTimer, vm.Timer)); err != nil {
		return nil, fmt.Errorf("vmstate: map timer: %w", err)
	}

	if err := vm.Mem.MapDevice(addr.Range{Start: msipBase, End: msipBase.Add(8 * int64(cfg.HartCount))},
		vm.wrapEvents(idMSI, vm.MSI)); err != nil {
		return nil, fmt.Errorf("vmstate: map msip: %w", err)
	}

	if err := vm.Mem.MapDevice(addr.Range{Start: ssipBase, End: ssipBase.Add(8 * int64(cfg.HartCount))},
		vm.wrapEvents(idSSI, vm.SSI)); err != nil {
		return nil, fmt.Errorf("vmstate: map ssip: %w", err)
	}

	if cfg.GraphicsMode == GraphicsVGAText {
		base := cfg.GraphicsAddress
		if base == 0 {
			base = DefaultVGAAddress
		}

		vm.VGA = NewVGAText()
		if err := vm.Mem.MapDevice(addr.Range{Start: base, End: base.Add(VGATextBufferSize)},
			vm.wrapEvents(idVGA, vm.VGA)); err != nil {
			return nil, fmt.Errorf("vmstate: map vga: %w", err)
		}
	}

	entry := cfg.RAMBase

	if cfg.Image != nil {
		entry = cfg.Image.Entry

		for _, seg := range cfg.Image.Segments {
			if err := vm.Mem.LoadELFSegment(seg.Addr, seg.Data); err != nil {
				return nil, fmt.Errorf("vmstate: load segment at %s: %w", seg.Addr, err)
			}
		}
	}

	for i, id := range hartIDs {
		pmpBank := pmp.New()
		bank := csr.New(id, pmpBank, mip[i])
		win := &window.Window{CSR: bank, PMP: pmpBank, Mem: vm.Mem}

		vm.Harts = append(vm.Harts, exec.New(id, bank, win, entry))
	}

	return vm, nil
}

// eventDevice decorates a memory.Device so every successful write also
// publishes a RegisterWrite event on the VM's bus, per spec.md §4.7's
// "writes generate RegisterWrite(address) events" rule.
type eventDevice struct {
	id  device.ID
	bus *device.Bus
	dev memory.Device
}

func (e *eventDevice) ReadBytes(offset uint64, size int) ([]byte, error) {
	return e.dev.ReadBytes(offset, size)
}

func (e *eventDevice) WriteBytes(offset uint64, data []byte) error {
	if err := e.dev.WriteBytes(offset, data); err != nil {
		return err
	}

	e.bus.Publish(e.id, device.Event{Source: e.id, Type: device.RegisterWrite, Offset: offset})

	return nil
}

func (vm *VM) wrapEvents(id device.ID, dev memory.Device) memory.Device {
	return &eventDevice{id: id, bus: vm.Bus, dev: dev}
}

// AddBreakpoint registers a as a stopping point for StepHartUntil. It takes
// effect whether or not the VM was built with WithBreakpoints; Step and Run
// ignore breakpoints.
func (vm *VM) AddBreakpoint(a addr.Address) {
	vm.breakpoints[a] = true
}

func (vm *VM) atBreakpoint(a addr.Address) bool {
	return vm.breakpoints != nil && vm.breakpoints[a]
}

// ErrStepLimit is returned by StepHartUntil/StepAllUntil when the caller's
// instruction budget is exhausted before the target condition is reached;
// per spec.md §5, this is a testing/tooling hook, not a safety mechanism.
var ErrStepLimit = errors.New("vmstate: step limit reached")

// ErrHalted is returned by Step when every hart is parked in WFI with no
// interrupt it could ever wake on this round — the host-observable
// equivalent of a guest halt, since the architecture itself has no
// "stop" instruction.
var ErrHalted = errors.New("vmstate: all harts halted")

// Step advances every hart by exactly one instruction in round-robin order,
// then polls the timer and lets a pending software-interrupt or
// register-write event take effect, per spec.md §5's single-threaded
// cooperative scheduling model.
func (vm *VM) Step() error {
	waiting := 0

	for _, h := range vm.Harts {
		if err := h.Step(); err != nil {
			if errors.Is(err, exec.ErrWaitForInterrupt) {
				waiting++
				continue
			}

			return fmt.Errorf("vmstate: hart %d: %w", h.ID, err)
		}
	}

	vm.Timer.Tick()

	if waiting == len(vm.Harts) {
		vm.log.Debug("vmstate: every hart parked in WFI", "harts", len(vm.Harts))
		return ErrHalted
	}

	return nil
}

// StepHartUntil steps only hart index h repeatedly until its PC equals
// target, a breakpoint is hit, or limit instructions have executed
// (limit <= 0 means unbounded). It does not advance other harts or poll
// devices, matching the original implementation's per-hart debug stepping
// (_examples/original_source's vmstate/mod.rs step_hart_until).
func (vm *VM) StepHartUntil(h int, target addr.Address, limit int) (int, error) {
	if h < 0 || h >= len(vm.Harts) {
		return 0, fmt.Errorf("vmstate: no hart %d", h)
	}

	hart := vm.Harts[h]
	steps := 0

	for hart.PC != target {
		if limit > 0 && steps >= limit {
			return steps, ErrStepLimit
		}

		if err := hart.Step(); err != nil {
			if errors.Is(err, exec.ErrWaitForInterrupt) {
				return steps, err
			}

			return steps, fmt.Errorf("vmstate: hart %d: %w", hart.ID, err)
		}

		steps++

		if vm.atBreakpoint(hart.PC) {
			vm.log.Debug("vmstate: breakpoint hit", "hart", hart.ID, "pc", hart.PC, "steps", steps)
			return steps, nil
		}
	}

	return steps, nil
}

// StepAllUntil calls Step repeatedly until limit rounds have run or Step
// returns an error. It is the bounded counterpart of Run.
func (vm *VM) StepAllUntil(limit int) error {
	for i := 0; i < limit; i++ {
		if err := vm.Step(); err != nil {
			return err
		}
	}

	return nil
}

// Run steps the VM forever, until Step returns an error. ErrHalted is a
// normal termination (every hart parked in WFI); any other error is a host
// resource fault — architectural traps never surface here, per spec.md §7.
func (vm *VM) Run() error {
	for {
		if err := vm.Step(); err != nil {
			vm.log.Debug("vmstate: run stopped", "err", err)
			return err
		}
	}
}
