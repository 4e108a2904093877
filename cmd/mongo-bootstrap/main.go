// Package main is the entry point for mongo-bootstrap, which creates the
// application's MongoDB user (dbOwner on one database) at first startup.
package main

func main() {
	Execute()
}
