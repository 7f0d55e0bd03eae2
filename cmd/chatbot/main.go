package main

import (
	"os"

	"github.com/ChiaYunhan/one-stop-chatbot/internal/app"
)

func main() {
	os.Exit(app.Run())
}
