// Command fakeverifier imitates a verification tool for process tests.
// The first argument selects the behaviour.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
)

func main() {
	mode := "pass"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	switch mode {
	case "pass":
		fmt.Println("  Contract: SimpleStorage")
		fmt.Println("    ✓ should store the value 89. (52ms)")
		fmt.Println("  1 passing (1s)")
		os.Exit(0)

	case "fail":
		fmt.Println("  Contract: SimpleStorage")
		fmt.Println("  0 passing (1s)")
		fmt.Println("  1 failing")
		fmt.Fprintln(os.Stderr, "AssertionError: expected 89 got 0")
		os.Exit(1)

	case "partial":
		fmt.Println("first line")
		// No trailing newline.
		fmt.Print("tail without newline")
		os.Exit(0)

	case "exit":
		code := 0
		if len(os.Args) > 2 {
			code, _ = strconv.Atoi(os.Args[2])
		}
		os.Exit(code)

	case "graceful":
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
		fmt.Println("started")
		select {
		case sig := <-sigs:
			fmt.Fprintf(os.Stderr, "received signal: %s\n", sig)
			time.Sleep(200 * time.Millisecond)
			fmt.Println("cleanup done")
			os.Exit(0)
		case <-time.After(30 * time.Second):
			fmt.Println("finished work (timeout)")
		}

	case "ignore-term":
		// Catch signals and ignore them to force a kill.
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
		fmt.Println("started")
		go func() {
			for s := range sigs {
				fmt.Printf("ignoring signal: %v\n", s)
			}
		}()
		for {
			time.Sleep(time.Second)
		}

	case "flood":
		n := 5000
		if len(os.Args) > 2 {
			n, _ = strconv.Atoi(os.Args[2])
		}
		for i := 0; i < n; i++ {
			fmt.Printf("line %d\n", i)
		}
		os.Exit(0)

	case "env":
		fmt.Println(os.Getenv("CRUCIBLE_FIXTURE"))
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", mode)
		os.Exit(2)
	}
}
