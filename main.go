package main

import "github.com/ValentinKolb/cqrpc/cmd"

func main() {
	cmd.Execute()
}
