package sql

import (
	"strconv"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult contains the result of an injection check on a bound
// parameter value.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	ParamName   string // Name of the parameter that failed the check
	ParamValue  any    // The value that was checked
}

// CheckParameterForInjection uses libinjection to detect SQL injection
// patterns in a bound parameter value.
//
// Only string values are checked; company ids, head ids, term ids, and
// dates cannot carry injection patterns and return nil. The pipeline only
// binds strings when a resolver passes raw text through (ticker lookups,
// name probes), which is exactly where screening matters.
//
// Returns nil if no injection is detected, or an InjectionCheckResult with
// details about the detected pattern.
func CheckParameterForInjection(paramName string, value any) *InjectionCheckResult {
	strValue, ok := value.(string)
	if !ok {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(strValue)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			ParamName:   paramName,
			ParamValue:  value,
		}
	}

	return nil
}

// CheckQueryArgs screens every bound argument of a lowered query. Returns
// one result per argument that tripped the screen; empty means clean.
// Argument names are reported positionally ($1, $2, ...) to match the
// placeholder the value binds to.
func CheckQueryArgs(q *Query) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for i, value := range q.Args {
		name := "$" + strconv.Itoa(i+1)
		if result := CheckParameterForInjection(name, value); result != nil {
			results = append(results, result)
		}
	}
	return results
}
