// Command lostsec scans URLs for file inclusion, SQL injection, XSS and
// open redirects with a probe-then-confirm pipeline.
package main

import "os"

func main() {
	os.Exit(Execute(os.Args[1:]))
}
