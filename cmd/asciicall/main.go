/* ASCII video conferencing client */
package main

import (
	asciicall "github.com/asciicall/asciicall/src"
)

func main() {
	asciicall.ClientMain()
}
