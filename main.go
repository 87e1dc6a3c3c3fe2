package main

import "github.com/dvloznov/bankbatch/cmd"

func main() {
	cmd.Execute()
}
