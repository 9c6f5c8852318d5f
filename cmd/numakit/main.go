// Command numakit inspects the NUMA layout and exercises the CPU and memory
// allocators.
//
//	numakit [global flags] topology [-json]
//	numakit [global flags] allocate [-n N] [-priority P] [-node N] [-hint-node N] [-isolated]
//	numakit [global flags] demo
//	numakit [global flags] bench [-size-mb N] [-passes N]
//	numakit [global flags] health
//
// On linux/amd64 build with -ldflags=-checklinkname=0: github.com/lrita/numa
// links to a runtime symbol the linker otherwise rejects.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "numakit: %v\n", err)
		os.Exit(1)
	}
}
