package validation

// methodRule describes how a method the gateway answers may be sent.
type methodRule struct {
	// notification methods must not carry an id; nothing would answer them.
	notification bool
	// needsParams methods are rejected without a params member.
	needsParams bool
}

// serverMethods is the complete method set. Only the tools capability is
// advertised, so resources, prompts and sampling are absent. Names are
// case-sensitive.
var serverMethods = map[string]methodRule{
	"initialize": {},
	"ping":       {},
	"tools/list": {},
	"tools/call": {needsParams: true},

	"notifications/initialized":        {notification: true},
	"notifications/cancelled":          {notification: true},
	"notifications/progress":           {notification: true},
	"notifications/roots/list_changed": {notification: true},
}

// IsServerMethod reports whether the gateway answers method.
func IsServerMethod(method string) bool {
	_, ok := serverMethods[method]
	return ok
}
