// naiactl is the operator CLI for a naia-server daemon.
package main

import "github.com/cBournhonesque/naia-go/cmd/naiactl/commands"

func main() {
	commands.Execute()
}
