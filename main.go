package main

import "github.com/ValentinKolb/paperKV/cmd"

func main() {
	cmd.Execute()
}
