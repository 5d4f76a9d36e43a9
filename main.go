package main

import "github.com/vibast-solutions/ms-go-memberships/cmd"

func main() {
	cmd.Execute()
}
