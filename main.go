package main

import "github.com/podscribe/podscribe/cmd"

func main() {
	cmd.Execute()
}
