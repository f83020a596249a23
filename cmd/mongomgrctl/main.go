// mongomgrctl -- CLI client for the mongomgr connection manager.
package main

import "github.com/mguindin/mongomgr/cmd/mongomgrctl/commands"

func main() {
	commands.Execute()
}
