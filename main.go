// ./main.go
package main

import (
	"github.com/shashank9mittal/uxray/cmd"
)

// main is the entry point for the uxray application. Command-line parsing,
// configuration, and execution all live in the cmd package.
func main() {
	cmd.Execute()
}
