package main

import "github.com/vibast-solutions/ms-go-payments-nicky/cmd"

func main() {
	cmd.Execute()
}
