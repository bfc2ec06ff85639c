package main

import "github.com/Darren9354/openr/cmd"

func main() {
	cmd.Execute()
}
