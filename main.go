package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/frahmantamala/reservation-payments/cmd"
)

func main() {
	cmd.Execute()
}
