package main

import "github.com/leesper/taonet/cmd"

func main() {
	cmd.Execute()
}
