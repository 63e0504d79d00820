// Command rv64 runs a RISC-V 64-bit guest image under the emulator.
//
// Grounded on the only pack repo with a real CLI framework dependency,
// oisee-z80-optimizer's cmd/z80opt/main.go: one root cobra.Command with
// flag-bearing subcommands rather than a single flat flag set.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smoynes/rv64/internal/addr"
	"github.com/smoynes/rv64/internal/loader"
	"github.com/smoynes/rv64/internal/vmstate"
)

// Exit codes per spec.md §6.
const (
	exitOK       = 0
	exitEmulator = 1
	exitBadHalt  = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var flags cliFlags

	root := &cobra.Command{
		Use:   "rv64",
		Short: "RISC-V 64-bit hart emulator",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Load an image and run it to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			vm, err := buildVM(flags)
			if err != nil {
				return err
			}

			if flags.step {
				return runStepConsole(vm)
			}

			err = vm.Run()
			if err == nil || errors.Is(err, vmstate.ErrHalted) {
				return nil
			}

			return err
		},
	}
	addFlags(runCmd, &flags)

	stepCmd := &cobra.Command{
		Use:   "step",
		Short: "Load an image and single-step it from an interactive console",
		RunE: func(cmd *cobra.Command, args []string) error {
			vm, err := buildVM(flags)
			if err != nil {
				return err
			}

			return runStepConsole(vm)
		},
	}
	addFlags(stepCmd, &flags)

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Load an image and print its entry point and segment layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := readImage(flags.image)
			if err != nil {
				return err
			}

			fmt.Printf("entry: %s\n", img.Entry)

			for _, seg := range img.Segments {
				fmt.Printf("segment: addr=%s size=%d\n", seg.Addr, len(seg.Data))
			}

			return nil
		},
	}
	inspectCmd.Flags().StringVar(&flags.image, "image", "", "path to the ELF64 guest image (required)")
	_ = inspectCmd.MarkFlagRequired("image")

	root.AddCommand(runCmd, stepCmd, inspectCmd)

	if err := root.Execute(); err != nil {
		var bad *badHaltError
		if errors.As(err, &bad) {
			fmt.Fprintln(os.Stderr, err)
			return exitBadHalt
		}

		fmt.Fprintln(os.Stderr, err)

		return exitEmulator
	}

	return exitOK
}

// cliFlags mirrors spec.md §6's minimal front-end exactly: --image,
// --hart-count, --enable-breakpoints, --step, --graphics-mode,
// --graphics-address.
type cliFlags struct {
	image             string
	hartCount         int
	enableBreakpoints bool
	step              bool
	graphicsMode      string
	graphicsAddress   string
}

func addFlags(cmd *cobra.Command, f *cliFlags) {
	cmd.Flags().StringVar(&f.image, "image", "", "path to the ELF64 guest image (required)")
	cmd.Flags().IntVar(&f.hartCount, "hart-count", 1, "number of harts")
	cmd.Flags().BoolVar(&f.enableBreakpoints, "enable-breakpoints", false, "enable the breakpoint table")
	cmd.Flags().BoolVar(&f.step, "step", false, "drop into the interactive single-step console")
	cmd.Flags().StringVar(&f.graphicsMode, "graphics-mode", vmstate.GraphicsNone, "vga-text or none")
	cmd.Flags().StringVar(&f.graphicsAddress, "graphics-address", "", "VGA MMIO base address, hex (default 0xb8000)")
	_ = cmd.MarkFlagRequired("image")
}

func readImage(path string) (*loader.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rv64: read image: %w", err)
	}

	img, err := loader.Load(data)
	if err != nil {
		return nil, fmt.Errorf("rv64: load image: %w", err)
	}

	return img, nil
}

func buildVM(f cliFlags) (*vmstate.VM, error) {
	img, err := readImage(f.image)
	if err != nil {
		return nil, err
	}

	opts := []vmstate.Option{
		vmstate.WithHartCount(f.hartCount),
		vmstate.WithImage(img),
	}

	if f.enableBreakpoints {
		opts = append(opts, vmstate.WithBreakpoints())
	}

	if f.graphicsMode == vmstate.GraphicsVGAText {
		var gaddr uint64

		if f.graphicsAddress != "" {
			if _, err := fmt.Sscanf(f.graphicsAddress, "0x%x", &gaddr); err != nil {
				return nil, fmt.Errorf("rv64: invalid --graphics-address %q: %w", f.graphicsAddress, err)
			}
		}

		opts = append(opts, vmstate.WithGraphicsMode(vmstate.GraphicsVGAText, addr.Address(gaddr)))
	}

	return vmstate.New(opts...)
}

// badHaltError marks a guest-requested bad halt distinctly from a host/
// emulator failure, per spec.md §6's exit code 2. Nothing in this module
// currently raises one (the architecture has no halt instruction of its
// own), but cmd/rv64 keeps the type and exit-code plumbing ready for a
// guest convention (e.g. a well-known ECALL number) a front-end may add.
type badHaltError struct {
	code int
}

func (e *badHaltError) Error() string {
	return fmt.Sprintf("rv64: guest halted with code %d", e.code)
}
