package main

import "kagami/cmd"

func main() {
	cmd.Execute()
}
