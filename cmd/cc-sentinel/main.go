package main

import (
	"fmt"
	"os"
)

func main() {
	root, a := newRootCmd()
	err := root.Execute()
	if cerr := a.close(); cerr != nil {
		fmt.Fprintf(os.Stderr, "cc-sentinel: %v\n", cerr)
	}
	if err != nil {
		os.Exit(1)
	}
}
