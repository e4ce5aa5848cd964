// Package main is the entry point for order-server, which consumes the user
// lookup contract through a registry-discovered client.
package main

func main() {
	Execute()
}
