package main

import "llvmenv/internal/llvmenv"

func main() {
	llvmenv.Execute()
}
