package main

import (
	"github.com/findy-network/findy-didcomm/cmd"
)

func main() {
	cmd.Execute()
}
