package main

import "github.com/ValentinKolb/gamelink/cmd"

func main() {
	cmd.Execute()
}
