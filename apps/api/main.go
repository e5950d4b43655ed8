package main

import (
	_ "net/http/pprof" // register the /debug/pprof handlers on the default mux
)

func main() {
	startWithDig()
}
