package httpx

import (
	"errors"
	"net/http"
)

// Rule maps a sentinel error to a problem status and title.
type Rule struct {
	Target error
	Status int
	Title  string
}

// RespondError maps err to an RFC7807 response using the first matching rule.
// Unmatched errors become a 500 without detail.
func RespondError(w http.ResponseWriter, err error, rules ...Rule) {
	for _, rule := range rules {
		if errors.Is(err, rule.Target) {
			Problem(w, rule.Status, rule.Title, err.Error())
			return
		}
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
