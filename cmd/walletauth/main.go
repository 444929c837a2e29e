package main

// version can be set during build with -ldflags
var version = "dev"

func main() {
	execute(version)
}
