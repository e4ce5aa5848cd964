// Package main is the entry point for user-server, which serves the user
// lookup contract.
//
// @title          user-server API
// @version        1.0
// @description    Serves the user lookup contract: GET /user/{uid} returns a string describing the user.
// @host           localhost:8082
// @BasePath       /
// @schemes        http
package main

func main() {
	Execute()
}
