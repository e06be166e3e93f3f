// moltpulse is the entry point for the domain intelligence CLI and server.
package main

import "github.com/moltpulse/moltpulse/cmd"

func main() {
	cmd.Execute()
}
