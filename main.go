package main

import "nativeforge/internal/forge"

func main() {
	forge.Main()
}
