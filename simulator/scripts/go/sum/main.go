package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// Sums the "values" argument of the trigger that started the task.
func main() {
	var trigger struct {
		ID   string `json:"id"`
		Args struct {
			Values []float64 `json:"values"`
		} `json:"args"`
	}
	if err := json.Unmarshal([]byte(os.Getenv("SCRIPT_ARG_TRIGGER")), &trigger); err != nil {
		panic(err)
	}

	var total float64
	for _, value := range trigger.Args.Values {
		total += value
	}
	fmt.Printf("trigger %s: total %g\n", trigger.ID, total)
}
