package main

import "github.com/KaramelBytes/crmlens/cmd"

func main() {
	cmd.Execute()
}
