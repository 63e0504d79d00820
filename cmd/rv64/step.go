package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/smoynes/rv64/internal/tty"
	"github.com/smoynes/rv64/internal/vmstate"
)

// runStepConsole drives vm one instruction at a time from a raw-mode
// terminal: space, enter or any other key advances every hart by one
// instruction, 'c' free-runs until every hart halts or an error occurs
// (breakpoints are not consulted), 'q' quits. Grounded on the teacher's console keystroke loop
// (smoynes/elsie cmd/internal/tty/tty.go's readTerminal/updateKeyboard
// pair), collapsed from async channel plumbing into a single blocking
// read since this console drives the VM itself rather than a keyboard
// device.
func runStepConsole(vm *vmstate.VM) error {
	console, err := tty.NewConsole(os.Stdin, os.Stdout)
	if err != nil {
		return fmt.Errorf("rv64: step console: %w", err)
	}
	defer console.Restore()

	console.Printf("rv64 step console: space/enter=step, c=continue, q=quit\r\n")

	for {
		printState(console, vm)

		key, err := console.ReadKey()
		if err != nil {
			return fmt.Errorf("rv64: step console: %w", err)
		}

		switch key {
		case 'q', 'Q', 0x03: // ^C
			return nil
		case 'c', 'C':
			err := vm.Run()
			if err == nil || errors.Is(err, vmstate.ErrHalted) {
				console.Printf("halted\r\n")
				return nil
			}

			return err
		default:
			if err := vm.Step(); err != nil {
				if errors.Is(err, vmstate.ErrHalted) {
					console.Printf("halted\r\n")
					return nil
				}

				return err
			}
		}
	}
}

func printState(console *tty.Console, vm *vmstate.VM) {
	for _, h := range vm.Harts {
		console.Printf("hart %d: pc=%s priv=%s\r\n", h.ID, h.PC, h.Priv)
	}
}
