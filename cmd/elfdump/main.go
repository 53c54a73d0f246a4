package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

var fRaw = pflag.BoolP("raw", "r", false, "also dump the raw ELF header")

func main() {
	pflag.Parse()

	if pflag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "usage: elfdump [--raw] <executable>...\n")
		os.Exit(2)
	}

	for _, path := range pflag.Args() {
		fmt.Printf("%s:\n", path)

		if err := dump(os.Stdout, path, *fRaw); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %s\n", path, err)
			os.Exit(1)
		}
	}
}
