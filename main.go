// main.go
//
// Entry point; the CLI lives in cmd/root.go

package main

import (
	"github.com/oss-sim/oss-sim/cmd"
)

func main() {
	cmd.Execute()
}
