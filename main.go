package main

import "github.com/ValentinKolb/kvmod/cmd"

func main() {
	cmd.Execute()
}
