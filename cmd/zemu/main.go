// zemu is a RISC-V (RV64IMA, partial) user-space hardware emulator.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/ralphjzhang/zemu/internal/bus"
	"github.com/ralphjzhang/zemu/internal/clint"
	"github.com/ralphjzhang/zemu/internal/cpu"
	"github.com/ralphjzhang/zemu/internal/log"
	"github.com/ralphjzhang/zemu/internal/plic"
	"github.com/ralphjzhang/zemu/internal/tty"
	"github.com/ralphjzhang/zemu/internal/uart"
	"github.com/ralphjzhang/zemu/internal/virtio"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: zemu [-debug] <kernel-binary> [<disk-image>]\n")
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin, stdout, stderr *os.File) int {
	flags := flag.NewFlagSet("zemu", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = usage

	debug := flags.Bool("debug", false, "enable debug logging")

	if err := flags.Parse(args); err != nil {
		return 1
	}

	rest := flags.Args()
	if len(rest) < 1 {
		usage()
		return 1
	}

	if *debug {
		log.Level.Set(log.Debug)
	}

	logger := log.DefaultLogger()

	kernel, err := os.ReadFile(rest[0])
	if err != nil {
		fmt.Fprintf(stderr, "zemu: reading kernel: %s\n", err)
		return 1
	}

	var disk []byte

	if len(rest) > 1 {
		disk, err = os.ReadFile(rest[1])
		if err != nil {
			fmt.Fprintf(stderr, "zemu: reading disk image: %s\n", err)
			return 1
		}
	}

	dram := bus.NewDRAM(kernel)
	c := clint.New()
	p := plic.New()
	v := virtio.New(disk)
	v.WithLogger(logger)

	console, consoleErr := tty.NewConsole(stdin, stdout)
	if consoleErr != nil && !errors.Is(consoleErr, tty.ErrNoTTY) {
		fmt.Fprintf(stderr, "zemu: console: %s\n", consoleErr)
		return 1
	}

	if consoleErr == nil {
		defer console.Restore()
	}

	u := uart.New(stdout)
	u.WithLogger(logger)

	b := bus.New(dram, c, p, u, v)
	b.WithLogger(logger)

	machine := cpu.New(b)
	machine.WithLogger(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := u.Run(ctx, stdin); err != nil {
			logger.Error("uart: host read loop", log.Any("ERROR", err))
		}
	}()

	if err := machine.Run(); err != nil {
		fmt.Fprintf(stderr, "zemu: %s\n", err)
		return 1
	}

	return 0
}
