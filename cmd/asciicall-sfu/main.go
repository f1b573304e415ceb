/* Selective forwarding unit for asciicall sessions */
package main

import (
	asciicall "github.com/asciicall/asciicall/src"
)

func main() {
	asciicall.SFUMain()
}
