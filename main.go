package main

import "github.com/chenhan1218/autopilot/cmd"

func main() {
	cmd.Execute()
}
