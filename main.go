package main

import "github.com/jywlabs/coursewright/cmd"

func main() {
	cmd.Execute()
}
