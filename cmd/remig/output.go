package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// printJSON writes indented JSON to stdout
func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

func jsonOutput() bool {
	return formatFlag == "json"
}
