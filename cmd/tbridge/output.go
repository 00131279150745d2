package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// outputResult prints v as indented JSON when --json is set, or hands
// off to fallback for the default human-readable rendering.
func outputResult(v interface{}, fallback func()) {
	if jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(v); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
			os.Exit(1)
		}
		return
	}
	fallback()
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
