// Command loxvm runs Lox-family source files on the bytecode virtual
// machine in pkg/vm, or starts an interactive REPL when given no file.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kristofer/loxvm/pkg/compiler"
	"github.com/kristofer/loxvm/pkg/debug"
	"github.com/kristofer/loxvm/pkg/vm"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		runREPL()
		return
	}

	switch os.Args[1] {
	case "version", "-v", "--version":
		fmt.Printf("loxvm version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	case "repl":
		runREPL()
	case "run":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Error: no file specified")
			printUsage()
			os.Exit(1)
		}
		runFile(os.Args[2])
	case "disassemble", "disasm":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Error: no file specified")
			fmt.Fprintln(os.Stderr, "\nUsage: loxvm disassemble <file.lox>")
			os.Exit(1)
		}
		disassembleFile(os.Args[2])
	case "batch":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Error: no files specified")
			fmt.Fprintln(os.Stderr, "\nUsage: loxvm batch <file.lox>...")
			os.Exit(1)
		}
		if !runBatch(os.Args[2:]) {
			os.Exit(1)
		}
	default:
		// Assume it's a file to run.
		runFile(os.Args[1])
	}
}

func printUsage() {
	fmt.Println("loxvm - a bytecode compiler and virtual machine")
	fmt.Println("\nUsage:")
	fmt.Println("  loxvm                        Start interactive REPL")
	fmt.Println("  loxvm [file]                 Run a source file")
	fmt.Println("  loxvm run <file>             Run a source file")
	fmt.Println("  loxvm batch <file>...        Run several source files concurrently")
	fmt.Println("  loxvm disassemble <file>     Print the compiled bytecode for a file")
	fmt.Println("  loxvm repl                   Start interactive REPL")
	fmt.Println("  loxvm version                Show version")
	fmt.Println("  loxvm help                   Show this help")
}

// runFile reads and executes a single source file to completion. Compile
// errors exit 65, runtime errors exit 70, the classic sysexits.h codes.
func runFile(filename string) {
	source, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}

	v := vm.New()
	if err := v.Interpret(string(source)); err != nil {
		fmt.Fprint(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	switch err.(type) {
	case *vm.CompileError:
		return 65
	case *vm.RuntimeError:
		return 70
	default:
		return 1
	}
}

// runBatch interprets each file on its own VM concurrently in an errgroup.
// The group's context is not passed to the workers, so one file's failure
// does not stop the others. It reports every failure (not just the first)
// since each VM is independent and a partial batch failure still needs a
// full account of which files broke.
func runBatch(filenames []string) bool {
	eg, _ := errgroup.WithContext(context.Background())

	var mu sync.Mutex
	var failures []error

	for _, filename := range filenames {
		filename := filename
		eg.Go(func() error {
			source, err := os.ReadFile(filename)
			if err != nil {
				err = fmt.Errorf("%s: %w", filename, err)
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
				return err
			}
			v := vm.New()
			if err := v.Interpret(string(source)); err != nil {
				err = fmt.Errorf("%s: %w", filename, err)
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
				return err
			}
			return nil
		})
	}
	eg.Wait()

	for _, err := range failures {
		fmt.Fprintln(os.Stderr, err)
	}
	return len(failures) == 0
}

// disassembleFile compiles a source file without running it and prints its
// bytecode listing, recursing into every function it declares.
func disassembleFile(filename string) {
	source, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}

	v := vm.New()
	fn, ok := compiler.Compile(string(source), v)
	if !ok {
		os.Exit(65)
	}
	debug.Disassemble(os.Stdout, fn, "<script>")
}

func runREPL() {
	fmt.Printf("loxvm %s\n", version)
	fmt.Println("Type Ctrl-D to exit.")

	v := vm.New()
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := v.Interpret(line); err != nil {
			fmt.Fprint(os.Stderr, err)
		}
	}
}
