// The radsim command runs cluster traffic experiments from the command
// line.
package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/tebeka/atexit"
)

func main() {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		log.Printf("loading .env: %s", err)
	}

	Execute()

	atexit.Exit(0)
}
