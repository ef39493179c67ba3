package main

import "github.com/rumbleFTW/koe-app/internal/bootstrap"

func main() {
	bootstrap.Run()
}
