package main

import "github.com/outpostrun/enginehost/cmd"

func main() {
	cmd.Main()
}
