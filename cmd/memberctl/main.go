package main

import "hize/membership/cmd/memberctl/cmd"

func main() {
	cmd.Execute()
}
