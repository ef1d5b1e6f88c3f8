package logger

import (
	"log"
	"os"
)

// New returns a logger writing to path, or to stdout if path is empty.
func New(path string) *log.Logger {
	if len(path) == 0 {
		return log.New(os.Stdout, "unibus11 ", log.Ldate|log.Ltime|log.Lshortfile)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0666)
	if err != nil {
		log.Fatal(err)
	}
	l := log.New(f, "unibus11 ", log.Ldate|log.Ltime|log.Lshortfile)
	l.Printf("logging to %s", path)
	return l
}
