package main

import "os"

// stdioConsole renders DL11 output to stdout, per
// davecheney-pdp11/console.go's KL11.writeterminal: carriage returns are
// dropped since the line just printed one via the accompanying newline.
type stdioConsole struct{}

func (stdioConsole) Put(unit int, ch byte) {
	if unit != 0 || ch == 13 {
		return
	}
	os.Stdout.Write([]byte{ch})
}

func (stdioConsole) Reset(unit int) {}
