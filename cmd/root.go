// Package cmd implements the njvm command-line front-end: flag parsing,
// loading a binary program, and dispatching to disassembly or execution.
package cmd

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"njvm/loader"
	"njvm/vm"
)

const (
	defaultStackKB = 64
	defaultHeapKB  = 8192
	version        = 8
)

var (
	flagHelp    bool
	flagVersion bool
	flagList    bool
	flagStackKB int
	flagHeapKB  int
	flagGCPurge bool
	flagGCStats bool
)

var rootCmd = &cobra.Command{
	Use:                   "njvm INPUT [flags]",
	Short:                 "Ninja bytecode virtual machine",
	SilenceUsage:          true,
	SilenceErrors:         true,
	DisableFlagsInUseLine: true,
	Args:                  cobra.MaximumNArgs(1),
	RunE:                  run,
}

func init() {
	flags := rootCmd.Flags()
	flags.BoolVarP(&flagHelp, "help", "h", false, "show this help message")
	flags.BoolVarP(&flagVersion, "version", "v", false, "print version information")
	flags.BoolVar(&flagList, "list", false, "print the program's disassembly and exit")
	flags.IntVar(&flagStackKB, "stack", defaultStackKB, "stack size in KiB")
	flags.IntVar(&flagHeapKB, "heap", defaultHeapKB, "heap size in KiB")
	flags.BoolVar(&flagGCPurge, "gcpurge", false, "zero the unused heap half after each collection")
	flags.BoolVar(&flagGCStats, "gcstats", false, "emit allocation counts and free space around each collection")
	rootCmd.SetHelpFunc(printBanner)
}

// Execute runs the njvm CLI and returns a process exit code: 0 on success,
// nonzero if anything failed.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func printBanner(cmd *cobra.Command, args []string) {
	fmt.Printf("Ninja Virtual Machine, version %d\n", version)
	fmt.Println("Usage: njvm INPUT [flags]")
	fmt.Println()
	fmt.Println(cmd.Flags().FlagUsages())
}

func run(cmd *cobra.Command, args []string) error {
	if flagHelp {
		printBanner(cmd, args)
		return nil
	}
	if flagVersion {
		fmt.Printf("Ninja Virtual Machine, version %d\n", version)
		return nil
	}
	if len(args) == 0 {
		fmt.Println("No input file given!")
		printBanner(cmd, args)
		return nil
	}

	program, err := loader.Load(args[0])
	if err != nil {
		return err
	}

	if flagList {
		machine := vm.New(vm.Config{Program: program.Instructions, StaticVars: program.StaticVars, StackKB: defaultStackKB, HeapKB: defaultHeapKB})
		return machine.Disassemble(os.Stdout)
	}

	if flagStackKB <= 0 {
		return errors.Wrapf(vm.ErrInvalidArgument, "stack size must be positive")
	}
	if flagHeapKB <= 0 {
		return errors.Wrapf(vm.ErrInvalidArgument, "heap size must be positive")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	machine := vm.New(vm.Config{
		Program:    program.Instructions,
		StaticVars: program.StaticVars,
		StackKB:    flagStackKB,
		HeapKB:     flagHeapKB,
		GCPurge:    flagGCPurge,
		GCStats:    flagGCStats,
		Logger:     logger.Sugar(),
	})

	fmt.Println(vm.StartMessage)
	runErr := machine.Run()
	fmt.Println(vm.StopMessage)
	return runErr
}
