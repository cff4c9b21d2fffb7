package main

import "github.com/kozaktomas/carecam/cmd"

func main() {
	cmd.Execute()
}
