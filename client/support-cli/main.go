package main

import "RoboSupport/client/support-cli/cmd"

func main() {
	cmd.Execute()
}
