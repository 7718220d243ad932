package main

import "github.com/khanhnv2901/webaudit-cli/cmd"

// execCmd is indirected for testing.
var execCmd = cmd.Execute

func main() {
	execCmd()
}
