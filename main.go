package main

import "github.com/frahmantamala/facilities-maintenance/cmd"

func main() {
	cmd.Execute()
}
