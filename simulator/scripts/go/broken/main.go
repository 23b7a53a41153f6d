package main

import "fmt"

func main() {
	var parts []string
	fmt.Println(parts[3])
}
