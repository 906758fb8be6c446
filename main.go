package main

import "github.com/user/emrchat/cmd"

func main() {
	cmd.Execute()
}
