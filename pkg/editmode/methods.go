package editmode

import "strings"

var (
	writeMethods = map[string]bool{"POST": true, "PUT": true, "DELETE": true, "PATCH": true}
	readMethods  = map[string]bool{"GET": true, "HEAD": true, "OPTIONS": true}
)

// IsWrite reports whether method mutates state
func IsWrite(method string) bool {
	return writeMethods[strings.ToUpper(method)]
}

// IsRead reports whether method is side-effect free
func IsRead(method string) bool {
	return readMethods[strings.ToUpper(method)]
}
