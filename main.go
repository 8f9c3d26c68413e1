package main

import "retflow/cmd"

func main() {
	cmd.Execute()
}
