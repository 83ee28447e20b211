package api

import "net/http"

// Action names one operation of the single-endpoint surface.
type Action int

const (
	ActionHealth Action = iota + 1
	ActionGetDocuments
	ActionLogout
	ActionLogin
	ActionUpload
	ActionGeneratePdf
	ActionAI
)

// AllActions lists every action in declaration order.
var AllActions = []Action{
	ActionHealth,
	ActionGetDocuments,
	ActionLogout,
	ActionLogin,
	ActionUpload,
	ActionGeneratePdf,
	ActionAI,
}

type actionRoute struct {
	name     string
	method   string
	auth     bool
	jsonBody bool
}

var actionRoutes = map[Action]actionRoute{
	ActionHealth:       {name: "health", method: http.MethodGet},
	ActionGetDocuments: {name: "getDocuments", method: http.MethodGet},
	ActionLogout:       {name: "logout", method: http.MethodGet},
	ActionLogin:        {name: "login", method: http.MethodPost},
	ActionUpload:       {name: "upload", method: http.MethodPost, auth: true, jsonBody: true},
	ActionGeneratePdf:  {name: "generatePdf", method: http.MethodPost, auth: true, jsonBody: true},
	ActionAI:           {name: "ai", method: http.MethodPost},
}

func (a Action) String() string {
	if route, ok := actionRoutes[a]; ok {
		return route.name
	}
	return "unknown"
}

// ParseAction resolves an action parameter; names are case-sensitive.
func ParseAction(name string) (Action, bool) {
	for _, a := range AllActions {
		if actionRoutes[a].name == name {
			return a, true
		}
	}
	return 0, false
}

// actionsFor returns the action names served on method.
func actionsFor(method string) []string {
	var names []string
	for _, a := range AllActions {
		if actionRoutes[a].method == method {
			names = append(names, actionRoutes[a].name)
		}
	}
	return names
}
