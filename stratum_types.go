package main

type StratumRequest struct {
	ID     any    `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

type StratumResponse struct {
	ID     any `json:"id"`
	Result any `json:"result"`
	Error  any `json:"error"`
}

// StratumNotification is a server-initiated message; id is always null.
type StratumNotification struct {
	ID     any    `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// stratumMethod is the closed set of client methods the proxy answers.
type stratumMethod int

const (
	methodUnknown stratumMethod = iota
	methodSubscribe
	methodAuthorize
	methodSubmit
	methodExtranonceSubscribe
	methodPing
)

var stratumMethodNames = map[string]stratumMethod{
	"mining.subscribe":            methodSubscribe,
	"mining.authorize":            methodAuthorize,
	"mining.submit":               methodSubmit,
	"mining.extranonce.subscribe": methodExtranonceSubscribe,
	"mining.ping":                 methodPing,
}

func parseStratumMethod(name string) stratumMethod {
	if m, ok := stratumMethodNames[name]; ok {
		return m
	}
	return methodUnknown
}

func (m stratumMethod) String() string {
	for name, v := range stratumMethodNames {
		if v == m {
			return name
		}
	}
	return "unknown"
}

const (
	notifySetTarget = "mining.set_target"
	notifyJob       = "mining.notify"
)

func stringParam(params []any, i int) (string, bool) {
	if i >= len(params) {
		return "", false
	}
	s, ok := params[i].(string)
	return s, ok
}
